package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/requestcontext"
)

// Normalizer is implemented by request bodies that trim or canonicalize
// their fields before validation.
type Normalizer interface {
	Normalize()
}

// Validator is implemented by request bodies that check their own shape.
type Validator interface {
	Validate() error
}

// Bind decodes a single JSON object from the request body into T, then
// normalizes and validates it. On failure it writes the error response and
// returns false; handlers return immediately in that case:
//
//	req, ok := httputil.Bind[IssueCredentialRequest](w, r, h.logger)
//	if !ok {
//		return
//	}
func Bind[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req := new(T)
	if err := decodeStrict(r.Body, req); err != nil {
		logRejected(logger, r, "undecodable request body", err)
		WriteError(w, err)
		return nil, false
	}
	if err := prepare(req); err != nil {
		logRejected(logger, r, "invalid request", err)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}

// decodeStrict rejects unknown fields, trailing data and oversized bodies.
func decodeStrict(body io.Reader, target any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return dErrors.New(dErrors.CodeBadRequest, "request body too large")
		}
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeBadRequest, "request body must hold a single JSON object")
	}
	return nil
}

// prepare keeps a domain code returned by Validate and tags any other
// failure as a validation error.
func prepare(req any) error {
	if n, ok := req.(Normalizer); ok {
		n.Normalize()
	}
	v, ok := req.(Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
}

func logRejected(logger *slog.Logger, r *http.Request, msg string, err error) {
	if logger == nil {
		return
	}
	ctx := r.Context()
	logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
