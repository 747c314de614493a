package credential

import (
	"context"
	"errors"
	"time"

	"credreg/internal/registry/consensus"
	"credreg/internal/registry/models"
	"credreg/internal/registry/tracer"
	"credreg/internal/sentinel"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/requestcontext"
)

// Verification is the answer to verify_credential at one ledger height.
// Status is the effective lifecycle status: Active past expiry reads Expired.
type Verification struct {
	CredentialID    id.CredentialID
	IsValid         bool
	Class           models.CredentialClass
	Status          models.LifecycleStatus
	ValidationState consensus.State
	IssuedAt        time.Time
	ExpiresAt       *time.Time
	InstitutionID   id.InstitutionID
	Height          uint64
}

type BatchVerification struct {
	Results []bool
	Height  uint64
}

// Verify evaluates validity from committed state on every call. A credential
// is valid iff it is Active, not expired, FullyValidated and its institution is
// accredited right now.
func (s *Service) Verify(ctx context.Context, cid id.CredentialID) (v *Verification, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialVerify,
		tracer.String(tracer.AttrCredentialID, cid.String()))
	start := time.Now()
	defer func() {
		if v != nil {
			span.SetAttributes(tracer.Bool(tracer.AttrValid, v.IsValid), tracer.Int64(tracer.AttrHeight, int64(v.Height))) // #nosec G115
		}
		span.End(err)
		if s.metrics != nil {
			s.metrics.ObserveVerifyLatency(time.Since(start).Seconds())
			if v != nil {
				s.metrics.IncVerification(v.IsValid)
			}
		}
	}()

	err = s.ledger.View(ctx, func(ctx context.Context) error {
		cred, err := s.find(ctx, cid)
		if err != nil {
			return err
		}
		valid, err := s.isValid(ctx, cred)
		if err != nil {
			return err
		}
		height, err := s.ledger.Height(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger height")
		}
		now := requestcontext.Now(ctx)
		v = &Verification{
			CredentialID:    cred.ID,
			IsValid:         valid,
			Class:           cred.Class,
			Status:          cred.EffectiveStatus(now),
			ValidationState: cred.ValidationState,
			IssuedAt:        cred.IssuedAt,
			ExpiresAt:       cred.ExpiresAt,
			InstitutionID:   cred.InstitutionID,
			Height:          height,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// BatchVerify applies the validity predicate to each id against one snapshot,
// preserving input order. Unknown ids are false.
func (s *Service) BatchVerify(ctx context.Context, ids []id.CredentialID) (b *BatchVerification, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialBatch,
		tracer.Int64(tracer.AttrBatchSize, int64(len(ids))))
	defer func() { span.End(err) }()

	if len(ids) > s.maxBatch {
		return nil, dErrors.New(dErrors.CodeValidation, "too many credential ids in one batch")
	}
	if s.metrics != nil {
		s.metrics.BatchSize.Observe(float64(len(ids)))
	}

	b = &BatchVerification{Results: make([]bool, len(ids))}
	err = s.ledger.View(ctx, func(ctx context.Context) error {
		// Accreditation is looked up once per institution per batch.
		accredited := make(map[id.InstitutionID]bool)
		for i, cid := range ids {
			cred, err := s.ledger.FindCredential(ctx, cid)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
			}
			if !s.isIntrinsicallyValid(ctx, cred) {
				continue
			}
			ok, seen := accredited[cred.InstitutionID]
			if !seen {
				ok, err = s.accreditation.IsAccredited(ctx, cred.InstitutionID)
				if err != nil {
					return err
				}
				accredited[cred.InstitutionID] = ok
			}
			b.Results[i] = ok
		}
		b.Height, err = s.ledger.Height(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger height")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) isValid(ctx context.Context, cred *models.Credential) (bool, error) {
	if !s.isIntrinsicallyValid(ctx, cred) {
		return false, nil
	}
	return s.accreditation.IsAccredited(ctx, cred.InstitutionID)
}

// isIntrinsicallyValid covers every condition that does not need the accreditation ledger.
func (s *Service) isIntrinsicallyValid(ctx context.Context, cred *models.Credential) bool {
	return cred.EffectiveStatus(requestcontext.Now(ctx)) == models.StatusActive &&
		cred.ValidationState == consensus.StateFullyValidated
}
