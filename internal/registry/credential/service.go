// Package credential owns the credential ledger: issuance, dual-track
// attestation, revocation and verification.
package credential

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"credreg/internal/platform/privacy"
	"credreg/internal/registry/consensus"
	"credreg/internal/registry/metrics"
	"credreg/internal/registry/models"
	"credreg/internal/registry/tracer"
	"credreg/internal/sentinel"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/requestcontext"
	"credreg/pkg/validation"
)

// Ledger is the slice of the registry ledger this service needs.
// Find methods return sentinel.ErrNotFound; CreateCredential returns
// sentinel.ErrAlreadyUsed when the id is taken.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	View(ctx context.Context, fn func(ctx context.Context) error) error
	Height(ctx context.Context) (uint64, error)
	FindCredential(ctx context.Context, cid id.CredentialID) (*models.Credential, error)
	ListCredentialsBySubject(ctx context.Context, subject id.Identity) ([]*models.Credential, error)
	CreateCredential(ctx context.Context, c *models.Credential) error
	UpdateCredential(ctx context.Context, c *models.Credential) error
	AppendEvent(ctx context.Context, ev *models.Event) error
}

// AccreditationChecker answers is_institution_accredited. It must read
// through ctx so checks inside a transition see that transition's state.
type AccreditationChecker interface {
	IsAccredited(ctx context.Context, inst id.InstitutionID) (bool, error)
}

type Service struct {
	ledger        Ledger
	accreditation AccreditationChecker
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        tracer.Tracer
	maxBatch      int
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

// WithMaxBatch caps the number of ids accepted by BatchVerify.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

func New(ledger Ledger, accreditation AccreditationChecker, opts ...Option) *Service {
	s := &Service{
		ledger:        ledger,
		accreditation: accreditation,
		tracer:        tracer.NewNoop(),
		maxBatch:      validation.MaxBatchVerify,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type IssueRequest struct {
	CredentialID  id.CredentialID
	Subject       id.Identity
	InstitutionID id.InstitutionID
	Class         models.CredentialClass
	ContentHash   string
	ExpiresAt     *time.Time
	Metadata      string
}

// Issue creates a credential for the caller's institution. Checks run in this
// order: caller role, id uniqueness, accreditation, expiry.
func (s *Service) Issue(ctx context.Context, caller id.Caller, req IssueRequest) (cred *models.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialIssue,
		tracer.String(tracer.AttrCredentialID, req.CredentialID.String()),
		tracer.String(tracer.AttrInstitution, req.InstitutionID.String()),
		tracer.String(tracer.AttrClass, string(req.Class)))
	defer func() { s.finish(ctx, span, "issue_credential", caller, err) }()

	if err := validateIssue(req); err != nil {
		return nil, err
	}
	if !caller.ActsFor(req.InstitutionID) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the institution bound to "+req.InstitutionID.String())
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.ledger.FindCredential(ctx, req.CredentialID)
		switch {
		case err == nil:
			return dErrors.New(dErrors.CodeAlreadyExists, "credential id already in use")
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
		}

		accredited, err := s.accreditation.IsAccredited(ctx, req.InstitutionID)
		if err != nil {
			return err
		}
		if !accredited {
			return dErrors.New(dErrors.CodeNotAccredited, "institution is not accredited")
		}

		cred, err = models.NewCredential(models.NewCredentialParams{
			ID:            req.CredentialID,
			Subject:       req.Subject,
			InstitutionID: req.InstitutionID,
			Class:         req.Class,
			ContentHash:   req.ContentHash,
			ExpiresAt:     req.ExpiresAt,
			Metadata:      req.Metadata,
			IssuedBy:      caller.Identity,
		}, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.ledger.CreateCredential(ctx, cred); err != nil {
			return wrapCreateErr(err)
		}
		return s.emit(ctx, models.CredentialIssued{
			CredentialID:  cred.ID,
			Subject:       cred.Subject,
			InstitutionID: cred.InstitutionID,
			Class:         cred.Class,
		}, caller.Identity)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(models.EventCredentialIssued),
		"credential_id", cred.ID.String(),
		"subject", privacy.Pseudonymize(cred.Subject.String()),
		"institution_id", cred.InstitutionID.String(),
		"class", string(cred.Class),
		"validation_state", string(cred.ValidationState))
	if s.metrics != nil {
		s.metrics.IncIssued(string(cred.Class))
	}
	return cred, nil
}

// Attest records the caller's vote on track. The caller must hold that track's role.
func (s *Service) Attest(ctx context.Context, caller id.Caller, cid id.CredentialID, track consensus.Track, approved bool) (cred *models.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialAttest,
		tracer.String(tracer.AttrCredentialID, cid.String()),
		tracer.String(tracer.AttrTrack, track.String()),
		tracer.Bool(tracer.AttrApproved, approved))
	defer func() { s.finish(ctx, span, "attest", caller, err) }()

	if !track.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "track must be A or B")
	}
	if caller.Role != track.Role() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller does not hold the track "+track.String()+" role")
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context) error {
		cred, err = s.find(ctx, cid)
		if err != nil {
			return err
		}
		if err := cred.Attest(track, caller.Identity, approved, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.ledger.UpdateCredential(ctx, cred); err != nil {
			return wrapFindErr(err, "failed to save credential")
		}
		return s.emit(ctx, models.CredentialValidated{
			CredentialID: cid,
			Attestor:     caller.Identity,
			Track:        track,
			Approved:     approved,
			NewState:     cred.ValidationState,
		}, caller.Identity)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(tracer.String(tracer.AttrState, string(cred.ValidationState)))
	s.logAudit(ctx, string(models.EventCredentialValidated),
		"credential_id", cid.String(),
		"attestor", caller.Identity.String(),
		"track", track.String(),
		"approved", approved,
		"new_state", string(cred.ValidationState))
	if s.metrics != nil {
		s.metrics.IncAttestation(track.String(), approved)
	}
	return cred, nil
}

// Revoke is open to the authority and to the institution that issued the
// credential, while that institution is accredited.
func (s *Service) Revoke(ctx context.Context, caller id.Caller, cid id.CredentialID, reason string) (cred *models.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialRevoke,
		tracer.String(tracer.AttrCredentialID, cid.String()))
	defer func() { s.finish(ctx, span, "revoke_credential", caller, err) }()

	if !caller.IsAuthority() && caller.Role != id.RoleInstitution {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the authority or the issuing institution may revoke")
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context) error {
		cred, err = s.find(ctx, cid)
		if err != nil {
			return err
		}
		if !caller.IsAuthority() {
			if !caller.ActsFor(cred.InstitutionID) {
				return dErrors.New(dErrors.CodeUnauthorized, "only the issuing institution may revoke this credential")
			}
			accredited, err := s.accreditation.IsAccredited(ctx, cred.InstitutionID)
			if err != nil {
				return err
			}
			if !accredited {
				return dErrors.New(dErrors.CodeUnauthorized, "institution is not accredited")
			}
		}
		if err := cred.Revoke(caller.Identity, reason, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.ledger.UpdateCredential(ctx, cred); err != nil {
			return wrapFindErr(err, "failed to save credential")
		}
		return s.emit(ctx, models.CredentialRevoked{
			CredentialID: cid,
			RevokedBy:    caller.Identity,
			Reason:       reason,
		}, caller.Identity)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(models.EventCredentialRevoked),
		"credential_id", cid.String(),
		"revoked_by", caller.Identity.String(),
		"reason", reason)
	if s.metrics != nil {
		s.metrics.IncRevoked(string(cred.Class))
	}
	return cred, nil
}

func (s *Service) Get(ctx context.Context, cid id.CredentialID) (cred *models.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialGet,
		tracer.String(tracer.AttrCredentialID, cid.String()))
	defer func() { span.End(err) }()

	return s.find(ctx, cid)
}

// ListBySubject returns the subject's credentials in issuance order.
func (s *Service) ListBySubject(ctx context.Context, subject id.Identity) (creds []*models.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialList,
		tracer.String(tracer.AttrSubjectHash, tracer.HashIdentity(subject.String())))
	defer func() { span.End(err) }()

	creds, err = s.ledger.ListCredentialsBySubject(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return creds, nil
}

func (s *Service) find(ctx context.Context, cid id.CredentialID) (*models.Credential, error) {
	cred, err := s.ledger.FindCredential(ctx, cid)
	if err != nil {
		return nil, wrapFindErr(err, "failed to load credential")
	}
	return cred, nil
}

func validateIssue(req IssueRequest) error {
	switch {
	case req.CredentialID == "":
		return dErrors.New(dErrors.CodeValidation, "credential_id is required")
	case req.Subject == "":
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	case req.InstitutionID == "":
		return dErrors.New(dErrors.CodeValidation, "institution_id is required")
	}
	return nil
}

func wrapFindErr(err error, action string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, action)
}

func wrapCreateErr(err error) error {
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		return dErrors.New(dErrors.CodeAlreadyExists, "credential id already in use")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create credential")
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
