// Package accreditation owns the accreditation ledger: which institutions may
// issue credentials, until when, and under whose sign-off.
package accreditation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"credreg/internal/registry/consensus"
	"credreg/internal/registry/metrics"
	"credreg/internal/registry/models"
	"credreg/internal/registry/tracer"
	"credreg/internal/sentinel"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/requestcontext"
)

// Ledger is the slice of the registry ledger this service needs.
// FindAccreditation returns sentinel.ErrNotFound when no record exists.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindAccreditation(ctx context.Context, inst id.InstitutionID) (*models.AccreditationRecord, error)
	SaveAccreditation(ctx context.Context, a *models.AccreditationRecord) error
	AppendEvent(ctx context.Context, ev *models.Event) error
}

type Service struct {
	ledger  Ledger
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func New(ledger Ledger, opts ...Option) *Service {
	s := &Service{ledger: ledger, tracer: tracer.NewNoop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type GrantRequest struct {
	InstitutionID        id.InstitutionID
	ExpiresAt            time.Time
	CertificateReference string
	TrackAAttestors      []id.Identity
	TrackBAttestors      []id.Identity
}

// Grant accredits an institution. A revoked or lapsed record is replaced;
// an active one is refused with CodeAlreadyExists.
func (s *Service) Grant(ctx context.Context, caller id.Caller, req GrantRequest) (record *models.AccreditationRecord, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAccreditationGrant,
		tracer.String(tracer.AttrInstitution, req.InstitutionID.String()))
	defer func() { s.finish(ctx, span, "grant_accreditation", caller, err) }()

	if !caller.IsAuthority() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the accreditation authority may grant accreditation")
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		existing, err := s.ledger.FindAccreditation(ctx, req.InstitutionID)
		switch {
		case err == nil && existing.IsActiveAt(now):
			return dErrors.New(dErrors.CodeAlreadyExists, "institution already holds an active accreditation")
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load accreditation")
		}

		record, err = models.NewAccreditation(models.GrantParams{
			InstitutionID:        req.InstitutionID,
			ExpiresAt:            req.ExpiresAt,
			CertificateReference: req.CertificateReference,
			TrackAAttestors:      req.TrackAAttestors,
			TrackBAttestors:      req.TrackBAttestors,
			GrantedBy:            caller.Identity,
		}, now)
		if err != nil {
			return err
		}
		if err := s.ledger.SaveAccreditation(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save accreditation")
		}
		return s.emit(ctx, models.AccreditationGranted{
			InstitutionID:        record.InstitutionID,
			ExpiresAt:            req.ExpiresAt,
			CertificateReference: record.CertificateReference,
		}, caller.Identity)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(models.EventAccreditationGranted),
		"institution_id", record.InstitutionID.String(),
		"expires_at", req.ExpiresAt,
		"granted_by", caller.Identity.String())
	if s.metrics != nil {
		s.metrics.AccreditationsGranted.Inc()
	}
	return record, nil
}

// Revoke withdraws an accreditation. Credentials already issued are untouched.
func (s *Service) Revoke(ctx context.Context, caller id.Caller, inst id.InstitutionID, reason string) (record *models.AccreditationRecord, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAccreditationRevoke,
		tracer.String(tracer.AttrInstitution, inst.String()))
	defer func() { s.finish(ctx, span, "revoke_accreditation", caller, err) }()

	if !caller.IsAuthority() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the accreditation authority may revoke accreditation")
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context) error {
		record, err = s.find(ctx, inst)
		if err != nil {
			return err
		}
		if err := record.Revoke(caller.Identity, reason, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.ledger.SaveAccreditation(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save accreditation")
		}
		return s.emit(ctx, models.AccreditationRevoked{
			InstitutionID: inst,
			RevokedBy:     caller.Identity,
			Reason:        reason,
		}, caller.Identity)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(models.EventAccreditationRevoked),
		"institution_id", inst.String(),
		"revoked_by", caller.Identity.String(),
		"reason", reason)
	if s.metrics != nil {
		s.metrics.AccreditationsRevoked.Inc()
	}
	return record, nil
}

// Endorse appends the calling attestor to the sign-off list of its track.
// The record's validation state is not changed.
func (s *Service) Endorse(ctx context.Context, caller id.Caller, inst id.InstitutionID, track consensus.Track) (record *models.AccreditationRecord, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAccreditationEndorse,
		tracer.String(tracer.AttrInstitution, inst.String()),
		tracer.String(tracer.AttrTrack, track.String()))
	defer func() { s.finish(ctx, span, "endorse_accreditation", caller, err) }()

	if !track.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "track must be A or B")
	}
	if caller.Role != track.Role() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller does not hold the track "+track.String()+" role")
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context) error {
		record, err = s.find(ctx, inst)
		if err != nil {
			return err
		}
		if err := record.Endorse(track, caller.Identity, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.ledger.SaveAccreditation(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save accreditation")
		}
		return s.emit(ctx, models.AccreditationEndorsed{
			InstitutionID: inst,
			Attestor:      caller.Identity,
			Track:         track,
		}, caller.Identity)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(models.EventAccreditationEndorsed),
		"institution_id", inst.String(),
		"attestor", caller.Identity.String(),
		"track", track.String())
	if s.metrics != nil {
		s.metrics.Endorsements.WithLabelValues(track.String()).Inc()
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, inst id.InstitutionID) (record *models.AccreditationRecord, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAccreditationGet,
		tracer.String(tracer.AttrInstitution, inst.String()))
	defer func() { span.End(err) }()

	return s.find(ctx, inst)
}

// IsAccredited is true iff a record exists, is accredited and has not expired
// at the request time. Inside a ledger transaction it reads that transaction's state.
func (s *Service) IsAccredited(ctx context.Context, inst id.InstitutionID) (bool, error) {
	record, err := s.ledger.FindAccreditation(ctx, inst)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load accreditation")
	}
	return record.IsActiveAt(requestcontext.Now(ctx)), nil
}

func (s *Service) find(ctx context.Context, inst id.InstitutionID) (*models.AccreditationRecord, error) {
	record, err := s.ledger.FindAccreditation(ctx, inst)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "accreditation not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load accreditation")
	}
	return record, nil
}

func (s *Service) emit(ctx context.Context, de models.DomainEvent, actor id.Identity) error {
	ev, err := models.NewEvent(de, actor, requestcontext.RequestID(ctx), requestcontext.Now(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode event")
	}
	if err := s.ledger.AppendEvent(ctx, ev); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append event")
	}
	return nil
}

func (s *Service) finish(ctx context.Context, span tracer.Span, operation string, caller id.Caller, err error) {
	if err == nil {
		span.AddEvent(tracer.EventCommitted)
	} else if code := dErrors.CodeOf(err); code != dErrors.CodeInternal {
		if s.metrics != nil {
			s.metrics.IncRejection(operation, string(code))
		}
		if code == dErrors.CodeUnauthorized && s.logger != nil {
			s.logger.WarnContext(ctx, "registry operation refused",
				"operation", operation,
				"caller", caller.Identity.String(),
				"role", string(caller.Role),
				"error", err)
		}
	}
	span.End(err)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	attributes = append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, attributes...)
}
