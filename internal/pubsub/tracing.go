package pubsub

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracedBackbone wraps a Backbone with producer and consumer spans. The
// publishing span context travels in message metadata as W3C traceparent,
// so a consumer on another instance continues the same trace when the
// transport carries metadata.
type TracedBackbone struct {
	next       Backbone
	tracer     trace.Tracer
	system     string
	propagator propagation.TextMapPropagator
}

// NewTracedBackbone decorates next. system names the transport in span attributes.
func NewTracedBackbone(next Backbone, tracer trace.Tracer, system string) *TracedBackbone {
	return &TracedBackbone{next: next, tracer: tracer, system: system, propagator: propagation.TraceContext{}}
}

func (t *TracedBackbone) attrs(operation string, msg Message) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", t.system),
		attribute.String("messaging.operation", operation),
		attribute.String("messaging.destination", msg.Topic),
		attribute.String("user.id", msg.UserID),
		attribute.Int("messaging.message_payload_size_bytes", len(msg.Payload)),
		attribute.String("messaging.message_payload_preview", payloadPreview(msg.Payload)),
	}
}

// Publish wraps the publish operation with tracing.
func (t *TracedBackbone) Publish(ctx context.Context, msg Message) error {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("pubsub.publish.%s", msg.Topic),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(t.attrs("publish", msg)...),
	)
	defer span.End()

	carrier := make(propagation.MapCarrier, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		carrier[k] = v
	}
	t.propagator.Inject(ctx, carrier)
	msg.Metadata = carrier

	err := t.next.Publish(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Subscribe wraps each handler invocation in a process span.
func (t *TracedBackbone) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return t.next.Subscribe(ctx, topic, t.wrap(handler))
}

// PSubscribe wraps each handler invocation in a process span.
func (t *TracedBackbone) PSubscribe(ctx context.Context, pattern string, handler Handler) error {
	return t.next.PSubscribe(ctx, pattern, t.wrap(handler))
}

func (t *TracedBackbone) wrap(handler Handler) Handler {
	return func(ctx context.Context, msg Message) error {
		ctx = t.propagator.Extract(ctx, propagation.MapCarrier(msg.Metadata))
		ctx, span := t.tracer.Start(ctx, fmt.Sprintf("pubsub.process.%s", msg.Topic),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(t.attrs("process", msg)...),
		)
		defer span.End()

		if err := handler(ctx, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return nil
	}
}

// Close closes the wrapped backbone.
func (t *TracedBackbone) Close() error {
	return t.next.Close()
}

// payloadPreview returns the first 100 bytes of the payload for span attributes.
func payloadPreview(payload []byte) string {
	preview := string(payload)
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return preview
}
