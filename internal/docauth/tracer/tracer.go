// Package tracer provides a lightweight tracing abstraction for the document
// verification pipeline.
//
// The interface keeps the vendor adapters and the proofing job decoupled from
// OpenTelemetry APIs while still emitting distributed traces in production.
//
// Implementations:
//   - NoopTracer: for tests (zero overhead)
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans for distributed tracing.
// Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSessionID returns a SHA-256 prefix of a capture-session UUID so traces
// can be correlated without carrying raw identifiers alongside applicant data.
func HashSessionID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(hash[:8])
}

// Span names used by the verification pipeline.
const (
	SpanProofingJob  = "proofing.perform"
	SpanDocAuthCall  = "docauth.verify"
	SpanStateIDCall  = "stateid.verify"
	SpanResultStore  = "capture.write_result"
	SpanWebhookEvent = "webhook.event"
)

// Attribute keys used by the verification pipeline.
const (
	AttrVendor      = "vendor"
	AttrReference   = "reference"
	AttrSessionHash = "session_hash"
	AttrSuccess     = "success"
	AttrCommitted   = "committed"
	AttrEventType   = "event_type"
)
