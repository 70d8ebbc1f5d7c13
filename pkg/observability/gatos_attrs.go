// Package observability provides GATOS-specific instrumentation helpers:
// semantic-convention attribute keys and operation-attribute builders for
// the Journal, Message Plane, and Policy Guard domains.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GATOS semantic convention attributes.
var (
	// Journal attributes
	AttrNamespace = attribute.Key("gatos.namespace")
	AttrActor     = attribute.Key("gatos.actor")
	AttrEventType = attribute.Key("gatos.event_type")
	AttrCommitID  = attribute.Key("gatos.commit_id")

	// Message Plane attributes
	AttrTopic         = attribute.Key("gatos.topic")
	AttrSegmentPrefix = attribute.Key("gatos.segment_prefix")
	AttrConsumerGroup = attribute.Key("gatos.consumer_group")

	// Policy attributes
	AttrPolicyVersion = attribute.Key("gatos.policy.version")
	AttrPolicyOutcome = attribute.Key("gatos.policy.outcome")
	AttrPolicyBackend = attribute.Key("gatos.policy.backend")
)

// JournalAppendOperation creates attributes for a Journal.Append call.
func JournalAppendOperation(ns, actor, eventType, commitID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrNamespace.String(ns),
		AttrActor.String(actor),
		AttrEventType.String(eventType),
		AttrCommitID.String(commitID),
	}
}

// MessagePlaneOperation creates attributes for a Publish/Read/Prune call.
func MessagePlaneOperation(topic, segmentPrefix string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTopic.String(topic),
		AttrSegmentPrefix.String(segmentPrefix),
	}
}

// PolicyOperation creates attributes for a policy evaluation.
func PolicyOperation(backend, policyVersion, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPolicyBackend.String(backend),
		AttrPolicyVersion.String(policyVersion),
		AttrPolicyOutcome.String(outcome),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err (if any) against the current span.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
