package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// TracerName is the instrumentation name used for server spans. Spans go
// to the global tracer provider; without one installed they are no-ops.
const TracerName = "github.com/blospray-dev/blospray/pkg/server"

func newTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// startCommandSpan opens the span covering one client command.
func (ss *session) startCommandSpan(ctx context.Context, msg *protocol.ClientMessage) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("blospray.session_id", ss.id),
		attribute.String("blospray.command", msg.Type.String()),
	}
	if msg.StringValue != "" {
		attrs = append(attrs, attribute.String("blospray.operand", msg.StringValue))
	}
	return ss.srv.tracer.Start(ctx, "blospray.command."+msg.Type.String(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// startFrameSpan opens the span covering one in-flight frame.
func (ss *session) startFrameSpan(ctx context.Context) trace.Span {
	_, span := ss.srv.tracer.Start(ctx, "blospray.frame",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("blospray.session_id", ss.id),
			attribute.String("blospray.render_mode", ss.mode.String()),
			attribute.Int("blospray.sample", ss.sample),
			attribute.Int("blospray.reduction_factor", ss.factor),
		),
	)
	return span
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if kind := blerrors.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("blospray.error_kind", string(kind)))
		}
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
