// Package tracer is the tracing seam for registry operations.
//
// Services depend on the small Tracer interface here rather than on
// OpenTelemetry directly. NoopTracer is used in tests; OTelTracer wraps the
// global OpenTelemetry provider in production.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span and marks it failed when err is non-nil.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// HashIdentity shortens a subject identity to a stable digest so traces can be
// correlated without carrying the identity itself.
func HashIdentity(identity string) string {
	if identity == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:8])
}

// Span names.
const (
	SpanAccreditationGrant   = "registry.accreditation.grant"
	SpanAccreditationRevoke  = "registry.accreditation.revoke"
	SpanAccreditationEndorse = "registry.accreditation.endorse"
	SpanAccreditationGet     = "registry.accreditation.get"
	SpanCredentialIssue      = "registry.credential.issue"
	SpanCredentialAttest     = "registry.credential.attest"
	SpanCredentialRevoke     = "registry.credential.revoke"
	SpanCredentialVerify     = "registry.credential.verify"
	SpanCredentialBatch      = "registry.credential.batch_verify"
	SpanCredentialGet        = "registry.credential.get"
	SpanCredentialList       = "registry.credential.list_by_subject"
)

// Attribute keys.
const (
	AttrCredentialID = "credential.id"
	AttrClass        = "credential.class"
	AttrInstitution  = "institution.id"
	AttrSubjectHash  = "subject.hash"
	AttrTrack        = "consensus.track"
	AttrApproved     = "consensus.approved"
	AttrState        = "consensus.state"
	AttrValid        = "verify.valid"
	AttrHeight       = "ledger.height"
	AttrBatchSize    = "batch.size"
)

// EventCommitted marks the point a transition committed.
const EventCommitted = "ledger.committed"
