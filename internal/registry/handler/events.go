package handler

import (
	"net/http"
	"strconv"

	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/platform/httputil"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// HandleListEvents pages through the event log by ledger height.
// Query: after (exclusive height, default 0), limit (default 100, max 1000).
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var after uint64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "after must be a ledger height"))
			return
		}
		after = v
	}
	limit := defaultEventPage
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxEventPage {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 1000"))
			return
		}
		limit = v
	}

	events, err := h.events.ListEvents(ctx, after, limit)
	if err != nil {
		h.fail(ctx, w, "list events failed", dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}

	out := &EventListResponse{Events: make([]*EventResponse, 0, len(events)), NextAfter: after}
	for _, ev := range events {
		out.Events = append(out.Events, toEventResponse(ev))
		out.NextAfter = ev.Height
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
