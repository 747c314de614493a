package models

import (
	"slices"
	"time"

	"credreg/internal/registry/consensus"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

// AccreditationRecord is one institution's authorization to issue credentials.
// Grants are authority-attested in bulk, so a record starts FullyValidated and
// the attestor lists are a sign-off trail rather than a vote tally.
type AccreditationRecord struct {
	InstitutionID        id.InstitutionID
	IsAccredited         bool
	AccreditedAt         time.Time
	ExpiresAt            *time.Time
	CertificateReference string
	ValidationState      consensus.State
	TrackAAttestors      []id.Identity
	TrackBAttestors      []id.Identity
	GrantedBy            id.Identity
	RevokedAt            *time.Time
	RevokedBy            id.Identity
	RevocationReason     string
	UpdatedAt            time.Time
}

type GrantParams struct {
	InstitutionID        id.InstitutionID
	ExpiresAt            time.Time
	CertificateReference string
	TrackAAttestors      []id.Identity
	TrackBAttestors      []id.Identity
	GrantedBy            id.Identity
}

func NewAccreditation(p GrantParams, now time.Time) (*AccreditationRecord, error) {
	if p.InstitutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution id is required")
	}
	if !p.ExpiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidExpiry, "accreditation expiry must be in the future")
	}
	if hasDuplicate(p.TrackAAttestors) || hasDuplicate(p.TrackBAttestors) {
		return nil, dErrors.New(dErrors.CodeDuplicateAttestation, "attestor listed twice on the same track")
	}
	expires := p.ExpiresAt
	return &AccreditationRecord{
		InstitutionID:        p.InstitutionID,
		IsAccredited:         true,
		AccreditedAt:         now,
		ExpiresAt:            &expires,
		CertificateReference: p.CertificateReference,
		ValidationState:      consensus.StateFullyValidated,
		TrackAAttestors:      slices.Clone(p.TrackAAttestors),
		TrackBAttestors:      slices.Clone(p.TrackBAttestors),
		GrantedBy:            p.GrantedBy,
		UpdatedAt:            now,
	}, nil
}

// IsActiveAt is true when the record is accredited and not past its expiry.
func (a *AccreditationRecord) IsActiveAt(now time.Time) bool {
	if a == nil || !a.IsAccredited {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

func (a *AccreditationRecord) Revoke(by id.Identity, reason string, now time.Time) error {
	if !a.IsAccredited {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "accreditation is already revoked")
	}
	at := now
	a.IsAccredited = false
	a.RevokedAt = &at
	a.RevokedBy = by
	a.RevocationReason = reason
	a.UpdatedAt = now
	return nil
}

// Endorse appends attestor to the sign-off list of track.
func (a *AccreditationRecord) Endorse(track consensus.Track, attestor id.Identity, now time.Time) error {
	if !a.IsAccredited {
		return dErrors.New(dErrors.CodeInvalidState, "accreditation is revoked")
	}
	list := a.attestors(track)
	if slices.Contains(*list, attestor) {
		return dErrors.New(dErrors.CodeDuplicateAttestation, "attestor already endorsed on track "+track.String())
	}
	*list = append(*list, attestor)
	a.UpdatedAt = now
	return nil
}

func (a *AccreditationRecord) attestors(track consensus.Track) *[]id.Identity {
	if track == consensus.TrackA {
		return &a.TrackAAttestors
	}
	return &a.TrackBAttestors
}

func (a *AccreditationRecord) Clone() *AccreditationRecord {
	if a == nil {
		return nil
	}
	out := *a
	out.ExpiresAt = cloneTime(a.ExpiresAt)
	out.RevokedAt = cloneTime(a.RevokedAt)
	out.TrackAAttestors = slices.Clone(a.TrackAAttestors)
	out.TrackBAttestors = slices.Clone(a.TrackBAttestors)
	return &out
}

func hasDuplicate(ids []id.Identity) bool {
	seen := make(map[id.Identity]struct{}, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
