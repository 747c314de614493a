package handler

import (
	"time"

	"credreg/internal/registry/accreditation"
	"credreg/internal/registry/consensus"
	"credreg/internal/registry/credential"
	"credreg/internal/registry/models"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	s "credreg/pkg/string"
	"credreg/pkg/validation"
)

// HTTP request DTOs. Each is normalized and validated by
// httputil.Bind before the handler converts it to service input.

type IssueCredentialRequest struct {
	CredentialID  string `json:"credential_id" validate:"required,notblank,max=128"`
	Subject       string `json:"subject_identity" validate:"required,notblank,max=128"`
	InstitutionID string `json:"institution_id" validate:"required,notblank,max=128"`
	Class         string `json:"credential_class" validate:"required,oneof=TranscriptRecord AdvancedDegree BaseCertification CourseCompletion ResearchPublication InnovationCertificate"`
	ContentHash   string `json:"content_hash" validate:"required,notblank"`
	ExpiresAt     string `json:"expires_at,omitempty" validate:"omitempty,rfc3339"`
	Metadata      string `json:"metadata,omitempty"`
}

func (r *IssueCredentialRequest) Normalize() {
	if r == nil {
		return
	}
	s.TrimStrings(&r.CredentialID, &r.Subject, &r.InstitutionID, &r.Class, &r.ContentHash, &r.ExpiresAt)
}

func (r *IssueCredentialRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckStringLength("content_hash", r.ContentHash, validation.MaxContentHashLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("metadata", r.Metadata, validation.MaxMetadataLength); err != nil {
		return err
	}
	return validation.Validate(r)
}

func (r *IssueCredentialRequest) ToServiceRequest() (credential.IssueRequest, error) {
	class, err := models.ParseCredentialClass(r.Class)
	if err != nil {
		return credential.IssueRequest{}, err
	}
	out := credential.IssueRequest{
		CredentialID:  id.CredentialID(r.CredentialID),
		Subject:       id.Identity(r.Subject),
		InstitutionID: id.InstitutionID(r.InstitutionID),
		Class:         class,
		ContentHash:   r.ContentHash,
		Metadata:      r.Metadata,
	}
	if r.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, r.ExpiresAt)
		if err != nil {
			return credential.IssueRequest{}, dErrors.New(dErrors.CodeValidation, "expires_at must be an RFC 3339 timestamp")
		}
		t = t.UTC()
		out.ExpiresAt = &t
	}
	return out, nil
}

type AttestRequest struct {
	Track    string `json:"track" validate:"required,oneof=A B"`
	Approved *bool  `json:"approved" validate:"required"`
}

func (r *AttestRequest) Normalize() {
	if r != nil {
		s.TrimStrings(&r.Track)
	}
}

func (r *AttestRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

func (r *AttestRequest) ParsedTrack() (consensus.Track, error) {
	return consensus.ParseTrack(r.Track)
}

type EndorseRequest struct {
	Track string `json:"track" validate:"required,oneof=A B"`
}

func (r *EndorseRequest) Normalize() {
	if r != nil {
		s.TrimStrings(&r.Track)
	}
}

func (r *EndorseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

func (r *EndorseRequest) ParsedTrack() (consensus.Track, error) {
	return consensus.ParseTrack(r.Track)
}

// RevokeRequest serves both credential and accreditation revocation.
type RevokeRequest struct {
	Reason string `json:"reason" validate:"required,notblank"`
}

func (r *RevokeRequest) Normalize() {
	if r != nil {
		s.TrimStrings(&r.Reason)
	}
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength); err != nil {
		return err
	}
	return validation.Validate(r)
}

type GrantAccreditationRequest struct {
	InstitutionID        string   `json:"institution_id" validate:"required,notblank,max=128"`
	ExpiresAt            string   `json:"expires_at" validate:"required,rfc3339"`
	CertificateReference string   `json:"certificate_reference" validate:"required,notblank"`
	TrackAAttestors      []string `json:"track_a_attestors" validate:"dive,notblank,max=128"`
	TrackBAttestors      []string `json:"track_b_attestors" validate:"dive,notblank,max=128"`
}

func (r *GrantAccreditationRequest) Normalize() {
	if r == nil {
		return
	}
	s.TrimStrings(&r.InstitutionID, &r.ExpiresAt, &r.CertificateReference)
	r.TrackAAttestors = s.TrimSlice(r.TrackAAttestors)
	r.TrackBAttestors = s.TrimSlice(r.TrackBAttestors)
}

func (r *GrantAccreditationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckSliceCount("track_a_attestors", len(r.TrackAAttestors), validation.MaxAttestorsPerTrack); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("track_b_attestors", len(r.TrackBAttestors), validation.MaxAttestorsPerTrack); err != nil {
		return err
	}
	if err := validation.CheckStringLength("certificate_reference", r.CertificateReference, validation.MaxCertificateLength); err != nil {
		return err
	}
	return validation.Validate(r)
}

func (r *GrantAccreditationRequest) ToServiceRequest() (accreditation.GrantRequest, error) {
	expires, err := time.Parse(time.RFC3339, r.ExpiresAt)
	if err != nil {
		return accreditation.GrantRequest{}, dErrors.New(dErrors.CodeValidation, "expires_at must be an RFC 3339 timestamp")
	}
	return accreditation.GrantRequest{
		InstitutionID:        id.InstitutionID(r.InstitutionID),
		ExpiresAt:            expires.UTC(),
		CertificateReference: r.CertificateReference,
		TrackAAttestors:      toIdentities(r.TrackAAttestors),
		TrackBAttestors:      toIdentities(r.TrackBAttestors),
	}, nil
}

type BatchVerifyRequest struct {
	CredentialIDs []string `json:"credential_ids" validate:"dive,notblank,max=128"`
}

func (r *BatchVerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// ParsedIDs keeps duplicates and order; the response is positional.
func (r *BatchVerifyRequest) ParsedIDs() ([]id.CredentialID, error) {
	out := make([]id.CredentialID, len(r.CredentialIDs))
	for i, raw := range r.CredentialIDs {
		cid, err := id.ParseCredentialID(raw)
		if err != nil {
			return nil, err
		}
		out[i] = cid
	}
	return out, nil
}

func toIdentities(raw []string) []id.Identity {
	out := make([]id.Identity, len(raw))
	for i, v := range raw {
		out[i] = id.Identity(v)
	}
	return out
}
