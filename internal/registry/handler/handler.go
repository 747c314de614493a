package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credreg/internal/registry/accreditation"
	"credreg/internal/registry/consensus"
	"credreg/internal/registry/credential"
	"credreg/internal/registry/models"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/platform/httputil"
	"credreg/pkg/requestcontext"
)

// CredentialService is the credential ledger as seen by the HTTP layer.
type CredentialService interface {
	Issue(ctx context.Context, caller id.Caller, req credential.IssueRequest) (*models.Credential, error)
	Attest(ctx context.Context, caller id.Caller, cid id.CredentialID, track consensus.Track, approved bool) (*models.Credential, error)
	Revoke(ctx context.Context, caller id.Caller, cid id.CredentialID, reason string) (*models.Credential, error)
	Get(ctx context.Context, cid id.CredentialID) (*models.Credential, error)
	ListBySubject(ctx context.Context, subject id.Identity) ([]*models.Credential, error)
	Verify(ctx context.Context, cid id.CredentialID) (*credential.Verification, error)
	BatchVerify(ctx context.Context, ids []id.CredentialID) (*credential.BatchVerification, error)
}

// AccreditationService is the accreditation ledger as seen by the HTTP layer.
type AccreditationService interface {
	Grant(ctx context.Context, caller id.Caller, req accreditation.GrantRequest) (*models.AccreditationRecord, error)
	Revoke(ctx context.Context, caller id.Caller, inst id.InstitutionID, reason string) (*models.AccreditationRecord, error)
	Endorse(ctx context.Context, caller id.Caller, inst id.InstitutionID, track consensus.Track) (*models.AccreditationRecord, error)
	Get(ctx context.Context, inst id.InstitutionID) (*models.AccreditationRecord, error)
}

// EventLog lists committed registry events for auditors.
type EventLog interface {
	ListEvents(ctx context.Context, afterHeight uint64, limit int) ([]*models.Event, error)
}

type Handler struct {
	credentials    CredentialService
	accreditations AccreditationService
	events         EventLog
	logger         *slog.Logger
}

func New(credentials CredentialService, accreditations AccreditationService, events EventLog, logger *slog.Logger) *Handler {
	return &Handler{
		credentials:    credentials,
		accreditations: accreditations,
		events:         events,
		logger:         logger,
	}
}

// Register mounts the registry routes. Reads are public; every mutation runs
// behind requireCaller, which must put an authenticated Caller in the context.
func (h *Handler) Register(r chi.Router, requireCaller func(http.Handler) http.Handler) {
	r.Route("/registry", func(r chi.Router) {
		r.Get("/credentials/{id}", h.HandleGetCredential)
		r.Get("/credentials/{id}/verify", h.HandleVerifyCredential)
		r.Post("/credentials/verify", h.HandleBatchVerify)
		r.Get("/subjects/{subject}/credentials", h.HandleListCredentialsBySubject)
		r.Get("/accreditations/{institution_id}", h.HandleGetAccreditation)
		r.Get("/events", h.HandleListEvents)

		r.Group(func(r chi.Router) {
			r.Use(requireCaller)
			r.Post("/credentials", h.HandleIssueCredential)
			r.Post("/credentials/{id}/attestations", h.HandleAttest)
			r.Post("/credentials/{id}/revoke", h.HandleRevokeCredential)
			r.Post("/accreditations", h.HandleGrantAccreditation)
			r.Post("/accreditations/{institution_id}/revoke", h.HandleRevokeAccreditation)
			r.Post("/accreditations/{institution_id}/endorse", h.HandleEndorseAccreditation)
		})
	})
}

// callerFrom returns the authenticated caller or writes a rejection.
func (h *Handler) callerFrom(w http.ResponseWriter, r *http.Request) (id.Caller, bool) {
	caller := requestcontext.Caller(r.Context())
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "caller identity required"))
		return id.Caller{}, false
	}
	return caller, true
}

// fail logs and writes err. Registry rejections are expected traffic and log
// at info; anything else is an error.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "request_id", requestcontext.RequestID(ctx))
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.InfoContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
