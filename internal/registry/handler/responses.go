package handler

import (
	"encoding/json"
	"time"

	"credreg/internal/registry/credential"
	"credreg/internal/registry/models"
	id "credreg/pkg/domain"
)

type VoteResponse struct {
	Track    string    `json:"track"`
	Attestor string    `json:"attestor"`
	Approved bool      `json:"approved"`
	CastAt   time.Time `json:"cast_at"`
}

type CredentialResponse struct {
	CredentialID     string         `json:"credential_id"`
	Subject          string         `json:"subject_identity"`
	InstitutionID    string         `json:"institution_id"`
	Class            string         `json:"credential_class"`
	Status           string         `json:"status"`
	ContentHash      string         `json:"content_hash"`
	IssuedAt         time.Time      `json:"issued_at"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
	ValidationState  string         `json:"validation_state"`
	TrackAAttestor   string         `json:"track_a_attestor,omitempty"`
	TrackBAttestor   string         `json:"track_b_attestor,omitempty"`
	Votes            []VoteResponse `json:"votes"`
	Metadata         string         `json:"metadata,omitempty"`
	IssuedBy         string         `json:"issued_by"`
	RevokedAt        *time.Time     `json:"revoked_at,omitempty"`
	RevokedBy        string         `json:"revoked_by,omitempty"`
	RevocationReason string         `json:"revocation_reason,omitempty"`
}

type CredentialListResponse struct {
	Credentials []*CredentialResponse `json:"credentials"`
}

type VerificationResponse struct {
	CredentialID    string     `json:"credential_id"`
	IsValid         bool       `json:"is_valid"`
	Class           string     `json:"credential_class"`
	Status          string     `json:"status"`
	ValidationState string     `json:"validation_state"`
	IssuedAt        time.Time  `json:"issued_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	InstitutionID   string     `json:"institution_id"`
	LedgerHeight    uint64     `json:"ledger_height"`
}

type BatchVerifyResponse struct {
	Results      []bool `json:"results"`
	LedgerHeight uint64 `json:"ledger_height"`
}

type AccreditationResponse struct {
	InstitutionID        string     `json:"institution_id"`
	IsAccredited         bool       `json:"is_accredited"`
	AccreditedAt         time.Time  `json:"accredited_at"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	CertificateReference string     `json:"certificate_reference"`
	ValidationState      string     `json:"validation_state"`
	TrackAAttestors      []string   `json:"track_a_attestors"`
	TrackBAttestors      []string   `json:"track_b_attestors"`
	GrantedBy            string     `json:"granted_by"`
	RevokedAt            *time.Time `json:"revoked_at,omitempty"`
	RevokedBy            string     `json:"revoked_by,omitempty"`
	RevocationReason     string     `json:"revocation_reason,omitempty"`
}

type EventResponse struct {
	EventID       string          `json:"event_id"`
	LedgerHeight  uint64          `json:"ledger_height"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	Actor         string          `json:"actor"`
	RequestID     string          `json:"request_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Published     bool            `json:"published"`
}

type EventListResponse struct {
	Events    []*EventResponse `json:"events"`
	NextAfter uint64           `json:"next_after"`
}

func toCredentialResponse(c *models.Credential) *CredentialResponse {
	votes := make([]VoteResponse, 0, len(c.Votes))
	for _, v := range c.Votes {
		votes = append(votes, VoteResponse{
			Track:    v.Track.String(),
			Attestor: v.Attestor.String(),
			Approved: v.Approved,
			CastAt:   v.CastAt,
		})
	}
	return &CredentialResponse{
		CredentialID:     c.ID.String(),
		Subject:          c.Subject.String(),
		InstitutionID:    c.InstitutionID.String(),
		Class:            string(c.Class),
		Status:           string(c.Status),
		ContentHash:      c.ContentHash,
		IssuedAt:         c.IssuedAt,
		ExpiresAt:        c.ExpiresAt,
		ValidationState:  c.ValidationState.String(),
		TrackAAttestor:   deref(c.TrackAAttestor),
		TrackBAttestor:   deref(c.TrackBAttestor),
		Votes:            votes,
		Metadata:         c.Metadata,
		IssuedBy:         c.IssuedBy.String(),
		RevokedAt:        c.RevokedAt,
		RevokedBy:        c.RevokedBy.String(),
		RevocationReason: c.RevocationReason,
	}
}

func toVerificationResponse(v *credential.Verification) *VerificationResponse {
	return &VerificationResponse{
		CredentialID:    v.CredentialID.String(),
		IsValid:         v.IsValid,
		Class:           string(v.Class),
		Status:          string(v.Status),
		ValidationState: v.ValidationState.String(),
		IssuedAt:        v.IssuedAt,
		ExpiresAt:       v.ExpiresAt,
		InstitutionID:   v.InstitutionID.String(),
		LedgerHeight:    v.Height,
	}
}

func toAccreditationResponse(a *models.AccreditationRecord) *AccreditationResponse {
	return &AccreditationResponse{
		InstitutionID:        a.InstitutionID.String(),
		IsAccredited:         a.IsAccredited,
		AccreditedAt:         a.AccreditedAt,
		ExpiresAt:            a.ExpiresAt,
		CertificateReference: a.CertificateReference,
		ValidationState:      a.ValidationState.String(),
		TrackAAttestors:      toStrings(a.TrackAAttestors),
		TrackBAttestors:      toStrings(a.TrackBAttestors),
		GrantedBy:            a.GrantedBy.String(),
		RevokedAt:            a.RevokedAt,
		RevokedBy:            a.RevokedBy.String(),
		RevocationReason:     a.RevocationReason,
	}
}

func toEventResponse(ev *models.Event) *EventResponse {
	return &EventResponse{
		EventID:       ev.ID.String(),
		LedgerHeight:  ev.Height,
		Type:          string(ev.Type),
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		Payload:       ev.Payload,
		Actor:         ev.Actor.String(),
		RequestID:     ev.RequestID,
		OccurredAt:    ev.OccurredAt,
		Published:     !ev.IsPending(),
	}
}

func deref(i *id.Identity) string {
	if i == nil {
		return ""
	}
	return i.String()
}

func toStrings(ids []id.Identity) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}
