package credential

import (
	"context"

	"credreg/internal/registry/tracer"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/requestcontext"
)

// finish closes a mutation span and counts registry-rule rejections.
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
	} else if s.logger != nil {
		s.logger.ErrorContext(ctx, "registry operation failed",
			"operation", operation,
			"error", err)
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
