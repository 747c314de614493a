package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	id "credreg/pkg/domain"
	"credreg/pkg/platform/httputil"
)

// HandleIssueCredential creates a credential for the caller's institution.
func (h *Handler) HandleIssueCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}

	req, ok := httputil.Bind[IssueCredentialRequest](w, r, h.logger)
	if !ok {
		return
	}
	issue, err := req.ToServiceRequest()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cred, err := h.credentials.Issue(ctx, caller, issue)
	if err != nil {
		h.fail(ctx, w, "issue credential failed", err, "credential_id", issue.CredentialID)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toCredentialResponse(cred))
}

// HandleAttest records a Track A or Track B vote.
func (h *Handler) HandleAttest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	cid, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Bind[AttestRequest](w, r, h.logger)
	if !ok {
		return
	}
	track, err := req.ParsedTrack()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cred, err := h.credentials.Attest(ctx, caller, cid, track, *req.Approved)
	if err != nil {
		h.fail(ctx, w, "attest failed", err, "credential_id", cid, "track", track)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(cred))
}

func (h *Handler) HandleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	cid, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Bind[RevokeRequest](w, r, h.logger)
	if !ok {
		return
	}

	cred, err := h.credentials.Revoke(ctx, caller, cid, req.Reason)
	if err != nil {
		h.fail(ctx, w, "revoke credential failed", err, "credential_id", cid)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(cred))
}

func (h *Handler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cred, err := h.credentials.Get(ctx, cid)
	if err != nil {
		h.fail(ctx, w, "get credential failed", err, "credential_id", cid)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(cred))
}

// HandleVerifyCredential answers whether a credential is valid right now.
// An unknown id is a 404, not an invalid result.
func (h *Handler) HandleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.credentials.Verify(ctx, cid)
	if err != nil {
		h.fail(ctx, w, "verify credential failed", err, "credential_id", cid)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(v))
}

// HandleBatchVerify preserves request order; unknown ids verify as false.
func (h *Handler) HandleBatchVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Bind[BatchVerifyRequest](w, r, h.logger)
	if !ok {
		return
	}
	ids, err := req.ParsedIDs()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	b, err := h.credentials.BatchVerify(ctx, ids)
	if err != nil {
		h.fail(ctx, w, "batch verify failed", err, "batch_size", len(ids))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &BatchVerifyResponse{Results: b.Results, LedgerHeight: b.Height})
}

func (h *Handler) HandleListCredentialsBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := id.ParseIdentity(chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	creds, err := h.credentials.ListBySubject(ctx, subject)
	if err != nil {
		h.fail(ctx, w, "list credentials failed", err)
		return
	}

	out := &CredentialListResponse{Credentials: make([]*CredentialResponse, 0, len(creds))}
	for _, c := range creds {
		out.Credentials = append(out.Credentials, toCredentialResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
