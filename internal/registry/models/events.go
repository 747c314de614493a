package models

import (
	"encoding/json"
	"time"

	"credreg/internal/registry/consensus"
	id "credreg/pkg/domain"
)

type EventType string

const (
	EventCredentialIssued      EventType = "CredentialIssued"
	EventCredentialValidated   EventType = "CredentialValidated"
	EventCredentialRevoked     EventType = "CredentialRevoked"
	EventAccreditationGranted  EventType = "AccreditationGranted"
	EventAccreditationRevoked  EventType = "AccreditationRevoked"
	EventAccreditationEndorsed EventType = "AccreditationEndorsed"
)

const (
	AggregateCredential    = "credential"
	AggregateAccreditation = "accreditation"
)

// DomainEvent is a payload describing one committed registry transition.
type DomainEvent interface {
	EventType() EventType
	AggregateType() string
	AggregateID() string
}

type CredentialIssued struct {
	CredentialID  id.CredentialID  `json:"credential_id"`
	Subject       id.Identity      `json:"subject_identity"`
	InstitutionID id.InstitutionID `json:"institution_id"`
	Class         CredentialClass  `json:"credential_class"`
}

type CredentialValidated struct {
	CredentialID id.CredentialID `json:"credential_id"`
	Attestor     id.Identity     `json:"attestor"`
	Track        consensus.Track `json:"track"`
	Approved     bool            `json:"approved"`
	NewState     consensus.State `json:"new_state"`
}

type CredentialRevoked struct {
	CredentialID id.CredentialID `json:"credential_id"`
	RevokedBy    id.Identity     `json:"revoked_by"`
	Reason       string          `json:"reason"`
}

type AccreditationGranted struct {
	InstitutionID        id.InstitutionID `json:"institution_id"`
	ExpiresAt            time.Time        `json:"expires_at"`
	CertificateReference string           `json:"certificate_reference"`
}

type AccreditationRevoked struct {
	InstitutionID id.InstitutionID `json:"institution_id"`
	RevokedBy     id.Identity      `json:"revoked_by"`
	Reason        string           `json:"reason"`
}

type AccreditationEndorsed struct {
	InstitutionID id.InstitutionID `json:"institution_id"`
	Attestor      id.Identity      `json:"attestor"`
	Track         consensus.Track  `json:"track"`
}

func (CredentialIssued) EventType() EventType      { return EventCredentialIssued }
func (CredentialValidated) EventType() EventType   { return EventCredentialValidated }
func (CredentialRevoked) EventType() EventType     { return EventCredentialRevoked }
func (AccreditationGranted) EventType() EventType  { return EventAccreditationGranted }
func (AccreditationRevoked) EventType() EventType  { return EventAccreditationRevoked }
func (AccreditationEndorsed) EventType() EventType { return EventAccreditationEndorsed }

func (CredentialIssued) AggregateType() string      { return AggregateCredential }
func (CredentialValidated) AggregateType() string   { return AggregateCredential }
func (CredentialRevoked) AggregateType() string     { return AggregateCredential }
func (AccreditationGranted) AggregateType() string  { return AggregateAccreditation }
func (AccreditationRevoked) AggregateType() string  { return AggregateAccreditation }
func (AccreditationEndorsed) AggregateType() string { return AggregateAccreditation }

func (e CredentialIssued) AggregateID() string      { return e.CredentialID.String() }
func (e CredentialValidated) AggregateID() string   { return e.CredentialID.String() }
func (e CredentialRevoked) AggregateID() string     { return e.CredentialID.String() }
func (e AccreditationGranted) AggregateID() string  { return e.InstitutionID.String() }
func (e AccreditationRevoked) AggregateID() string  { return e.InstitutionID.String() }
func (e AccreditationEndorsed) AggregateID() string { return e.InstitutionID.String() }

// Event is the persisted form of a DomainEvent. It doubles as the outbox
// entry relayed to Kafka: ProcessedAt is nil until published.
type Event struct {
	ID            id.EventID
	Height        uint64 // ledger height assigned at commit
	Type          EventType
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
	Actor         id.Identity
	RequestID     string
	OccurredAt    time.Time
	ProcessedAt   *time.Time
}

func (e *Event) IsPending() bool { return e.ProcessedAt == nil }

// NewEvent wraps a domain event for the ledger. Height is left for the store.
func NewEvent(de DomainEvent, actor id.Identity, requestID string, now time.Time) (*Event, error) {
	payload, err := json.Marshal(de)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            id.NewEventID(),
		Type:          de.EventType(),
		AggregateType: de.AggregateType(),
		AggregateID:   de.AggregateID(),
		Payload:       payload,
		Actor:         actor,
		RequestID:     requestID,
		OccurredAt:    now,
	}, nil
}

func (e *Event) Clone() *Event {
	out := *e
	out.Payload = append(json.RawMessage(nil), e.Payload...)
	out.ProcessedAt = cloneTime(e.ProcessedAt)
	return &out
}
