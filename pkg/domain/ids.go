// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "credreg/pkg/domain-errors"
)

// MaxIDLength bounds externally assigned keys so they fit the ledger's indexed columns.
const MaxIDLength = 128

// Distinct ID types - compiler prevents passing an InstitutionID where a CredentialID is expected.
type (
	CredentialID  string
	InstitutionID string
	Identity      string
	EventID       uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, API inputs, token claims).

func ParseCredentialID(s string) (CredentialID, error) {
	v, err := parseKey(s, "credential ID")
	return CredentialID(v), err
}

func ParseInstitutionID(s string) (InstitutionID, error) {
	v, err := parseKey(s, "institution ID")
	return InstitutionID(v), err
}

func ParseIdentity(s string) (Identity, error) {
	v, err := parseKey(s, "identity")
	return Identity(v), err
}

func NewEventID() EventID { return EventID(uuid.New()) }

func (id CredentialID) String() string  { return string(id) }
func (id InstitutionID) String() string { return string(id) }
func (id Identity) String() string      { return string(id) }
func (id EventID) String() string       { return uuid.UUID(id).String() }

func (id CredentialID) IsNil() bool  { return id == "" }
func (id InstitutionID) IsNil() bool { return id == "" }
func (id Identity) IsNil() bool      { return id == "" }
func (id EventID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// parseKey trims surrounding whitespace and rejects empty, oversized, or
// control-character keys. Keys are otherwise opaque to the registry.
func parseKey(s, label string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) > MaxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" is too long")
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" contains control characters")
	}
	return s, nil
}
