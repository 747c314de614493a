package tracer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"credreg/internal/registry/tracer"
	dErrors "credreg/pkg/domain-errors"
)

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	newCtx, span := tracer.NewNoop().Start(ctx, tracer.SpanCredentialVerify,
		tracer.String(tracer.AttrCredentialID, "cred-1"),
		tracer.Bool(tracer.AttrValid, true),
	)
	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Int64(tracer.AttrHeight, 7))
	span.AddEvent(tracer.EventCommitted)
	span.End(errors.New("boom"))
}

func TestOTelTracer_WithInjectedTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))
	_, span := tr.Start(context.Background(), tracer.SpanCredentialIssue,
		tracer.String(tracer.AttrClass, "AdvancedDegree"),
		tracer.Int64(tracer.AttrHeight, 3),
	)
	span.AddEvent(tracer.EventCommitted, tracer.Bool("ok", true))
	span.End(dErrors.New(dErrors.CodeNotAccredited, "institution not accredited"))
}

func TestHashIdentity(t *testing.T) {
	assert.Empty(t, tracer.HashIdentity(""))
	h := tracer.HashIdentity("alice")
	assert.Len(t, h, 16)
	assert.Equal(t, h, tracer.HashIdentity("alice"))
	assert.NotEqual(t, h, tracer.HashIdentity("bob"))
}
