package models

import (
	"slices"
	"time"

	"credreg/internal/registry/consensus"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

type CredentialClass string

const (
	ClassTranscriptRecord      CredentialClass = "TranscriptRecord"
	ClassAdvancedDegree        CredentialClass = "AdvancedDegree"
	ClassBaseCertification     CredentialClass = "BaseCertification"
	ClassCourseCompletion      CredentialClass = "CourseCompletion"
	ClassResearchPublication   CredentialClass = "ResearchPublication"
	ClassInnovationCertificate CredentialClass = "InnovationCertificate"
)

// AllClasses lists every credential class in declaration order.
var AllClasses = []CredentialClass{
	ClassTranscriptRecord,
	ClassAdvancedDegree,
	ClassBaseCertification,
	ClassCourseCompletion,
	ClassResearchPublication,
	ClassInnovationCertificate,
}

func ParseCredentialClass(raw string) (CredentialClass, error) {
	c := CredentialClass(raw)
	if !slices.Contains(AllClasses, c) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown credential class: "+raw)
	}
	return c, nil
}

// RequiresDualTrack is false only for the low-stakes CourseCompletion class,
// which is validated at issuance.
func (c CredentialClass) RequiresDualTrack() bool {
	return c != ClassCourseCompletion
}

type LifecycleStatus string

const (
	StatusActive    LifecycleStatus = "Active"
	StatusExpired   LifecycleStatus = "Expired"
	StatusRevoked   LifecycleStatus = "Revoked"
	StatusSuspended LifecycleStatus = "Suspended"
)

// Vote is one attestation cast on a credential.
type Vote struct {
	Track    consensus.Track
	Attestor id.Identity
	Approved bool
	CastAt   time.Time
}

type Credential struct {
	ID               id.CredentialID
	Subject          id.Identity
	InstitutionID    id.InstitutionID
	Class            CredentialClass
	Status           LifecycleStatus
	ContentHash      string
	IssuedAt         time.Time
	ExpiresAt        *time.Time
	ValidationState  consensus.State
	TrackAAttestor   *id.Identity
	TrackBAttestor   *id.Identity
	Votes            []Vote
	Metadata         string
	IssuedBy         id.Identity
	RevokedAt        *time.Time
	RevokedBy        id.Identity
	RevocationReason string
	UpdatedAt        time.Time
}

type NewCredentialParams struct {
	ID            id.CredentialID
	Subject       id.Identity
	InstitutionID id.InstitutionID
	Class         CredentialClass
	ContentHash   string
	ExpiresAt     *time.Time
	Metadata      string
	IssuedBy      id.Identity
}

// NewCredential builds an Active credential issued at now. CourseCompletion
// starts FullyValidated, every other class starts Pending.
func NewCredential(p NewCredentialParams, now time.Time) (*Credential, error) {
	if p.ID.IsNil() || p.Subject.IsNil() || p.InstitutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential id, subject and institution are required")
	}
	if _, err := ParseCredentialClass(string(p.Class)); err != nil {
		return nil, err
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidExpiry, "credential expiry must be after issuance")
	}
	state := consensus.StatePending
	if !p.Class.RequiresDualTrack() {
		state = consensus.StateFullyValidated
	}
	return &Credential{
		ID:              p.ID,
		Subject:         p.Subject,
		InstitutionID:   p.InstitutionID,
		Class:           p.Class,
		Status:          StatusActive,
		ContentHash:     p.ContentHash,
		IssuedAt:        now,
		ExpiresAt:       cloneTime(p.ExpiresAt),
		ValidationState: state,
		Metadata:        p.Metadata,
		IssuedBy:        p.IssuedBy,
		UpdatedAt:       now,
	}, nil
}

// HasVoted reports whether attestor already cast a vote on track.
func (c *Credential) HasVoted(track consensus.Track, attestor id.Identity) bool {
	return slices.ContainsFunc(c.Votes, func(v Vote) bool {
		return v.Track == track && v.Attestor == attestor
	})
}

// Attest records one vote and advances the validation state.
// A rejection also suspends the credential. The credential is left untouched
// when the vote is refused.
func (c *Credential) Attest(track consensus.Track, attestor id.Identity, approved bool, now time.Time) error {
	if attestor.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "attestor identity is required")
	}
	if c.HasVoted(track, attestor) {
		return dErrors.New(dErrors.CodeDuplicateAttestation, "attestor already voted on track "+track.String())
	}
	if c.Status == StatusRevoked {
		return dErrors.New(dErrors.CodeInvalidState, "credential is revoked")
	}
	next, err := consensus.Transition(c.ValidationState, track, approved)
	if err != nil {
		return err
	}

	who := attestor
	if track == consensus.TrackA {
		c.TrackAAttestor = &who
	} else {
		c.TrackBAttestor = &who
	}
	c.Votes = append(c.Votes, Vote{Track: track, Attestor: attestor, Approved: approved, CastAt: now})
	c.ValidationState = next
	if next == consensus.StateRejected {
		c.Status = StatusSuspended
	}
	c.UpdatedAt = now
	return nil
}

// Revoke marks the credential Revoked whatever its validation state.
func (c *Credential) Revoke(by id.Identity, reason string, now time.Time) error {
	if c.Status == StatusRevoked {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "credential is already revoked")
	}
	at := now
	c.Status = StatusRevoked
	c.RevokedAt = &at
	c.RevokedBy = by
	c.RevocationReason = reason
	c.UpdatedAt = now
	return nil
}

// IsExpiredAt reports whether the credential has an expiry at or before now.
func (c *Credential) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// EffectiveStatus is the lifecycle status as observed at now: an Active
// credential past its expiry reads as Expired. The stored status is not changed.
func (c *Credential) EffectiveStatus(now time.Time) LifecycleStatus {
	if c.Status == StatusActive && c.IsExpiredAt(now) {
		return StatusExpired
	}
	return c.Status
}

// Clone returns a deep copy so ledger snapshots never share mutable state.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.ExpiresAt = cloneTime(c.ExpiresAt)
	out.RevokedAt = cloneTime(c.RevokedAt)
	out.TrackAAttestor = cloneIdentity(c.TrackAAttestor)
	out.TrackBAttestor = cloneIdentity(c.TrackBAttestor)
	out.Votes = slices.Clone(c.Votes)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneIdentity(i *id.Identity) *id.Identity {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
