package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	id "credreg/pkg/domain"
	"credreg/pkg/platform/httputil"
)

// HandleGrantAccreditation is restricted to the accreditation authority.
func (h *Handler) HandleGrantAccreditation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}

	req, ok := httputil.Bind[GrantAccreditationRequest](w, r, h.logger)
	if !ok {
		return
	}
	grant, err := req.ToServiceRequest()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.accreditations.Grant(ctx, caller, grant)
	if err != nil {
		h.fail(ctx, w, "grant accreditation failed", err, "institution_id", grant.InstitutionID)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toAccreditationResponse(record))
}

func (h *Handler) HandleRevokeAccreditation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	inst, err := id.ParseInstitutionID(chi.URLParam(r, "institution_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Bind[RevokeRequest](w, r, h.logger)
	if !ok {
		return
	}

	record, err := h.accreditations.Revoke(ctx, caller, inst, req.Reason)
	if err != nil {
		h.fail(ctx, w, "revoke accreditation failed", err, "institution_id", inst)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAccreditationResponse(record))
}

// HandleEndorseAccreditation appends the caller to the track's attestor list.
func (h *Handler) HandleEndorseAccreditation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	inst, err := id.ParseInstitutionID(chi.URLParam(r, "institution_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Bind[EndorseRequest](w, r, h.logger)
	if !ok {
		return
	}
	track, err := req.ParsedTrack()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.accreditations.Endorse(ctx, caller, inst, track)
	if err != nil {
		h.fail(ctx, w, "endorse accreditation failed", err, "institution_id", inst, "track", track)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAccreditationResponse(record))
}

func (h *Handler) HandleGetAccreditation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inst, err := id.ParseInstitutionID(chi.URLParam(r, "institution_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.accreditations.Get(ctx, inst)
	if err != nil {
		h.fail(ctx, w, "get accreditation failed", err, "institution_id", inst)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAccreditationResponse(record))
}
