package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on sync spans.
const (
	AttrCycleID    = "sync.cycle_id"
	AttrTrigger    = "sync.trigger"
	AttrRequestID  = "sync.request_id"
	AttrEndpoint   = "sync.endpoint"
	AttrMethod     = "sync.method"
	AttrAttempt    = "sync.attempt"
	AttrHTTPStatus = "sync.http_status"
	AttrOutcome    = "sync.outcome" // completed, retry, deadlettered, aborted
)

// StartSpan starts a span using the configured tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan finishes a span, recording err when non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
