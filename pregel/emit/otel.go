package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each Event into an immediately-closed OpenTelemetry
// span, named after event.Msg and carrying runID/step/nodeID/channel plus
// every Meta entry as attributes. Meta["error"] (if present) marks the span
// as errored.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an Emitter backed by tracer, typically obtained via
// otel.Tracer("pregel").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("run_id", event.RunID),
		attribute.Int("step", event.Step),
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("node_id", event.NodeID))
	}
	if event.Channel != "" {
		attrs = append(attrs, attribute.String("channel", event.Channel))
	}
	for k, v := range event.Meta {
		attrs = append(attrs, attribute.String(k, toAttrString(v)))
	}
	span.SetAttributes(attrs...)

	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, toAttrString(errVal))
	}
}

func toAttrString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return "" // values that are neither string nor error are recorded as an empty string
	}
}

func (o *OTelEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		o.Emit(e)
	}
	return nil
}

// Flush is a no-op: spans are ended synchronously in Emit. Export buffering
// is the configured SpanProcessor's responsibility, not this emitter's.
func (o *OTelEmitter) Flush(_ context.Context) error { return nil }
