package protocol

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

const scopeName = "github.com/valkyrie-lang/valkyrie-lsp/internal/protocol"

var (
	attrMethod = attribute.Key("rpc.method")
	attrKind   = attribute.Key("rpc.kind")
	attrStatus = attribute.Key("rpc.status")
)

// instruments record per-message telemetry. The providers default to the
// otel globals, which are no-ops until configured.
type instruments struct {
	tracer        trace.Tracer
	messages      metric.Int64Counter
	requestTiming metric.Float64Histogram
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(scopeName)

	messages, err := meter.Int64Counter("lsp.messages",
		metric.WithDescription("Messages dispatched, by method and outcome"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}

	requestTiming, err := meter.Float64Histogram("lsp.request.duration",
		metric.WithDescription("Request handling duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &instruments{
		tracer:        tp.Tracer(scopeName),
		messages:      messages,
		requestTiming: requestTiming,
	}, nil
}

func (in *instruments) start(ctx context.Context, method string, kind rpc.Kind) (context.Context, trace.Span) {
	if in == nil {
		return ctx, noop.Span{}
	}
	return in.tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(
		attrMethod.String(method),
		attrKind.String(kind.String()),
	))
}

func (in *instruments) finish(ctx context.Context, span trace.Span, method string, kind rpc.Kind, started time.Time, err error) {
	if in == nil {
		return
	}
	defer span.End()

	status := "ok"
	if err != nil {
		status = toRPCError(err).Code.String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attrStatus.String(status))

	in.messages.Add(ctx, 1, metric.WithAttributes(
		attrMethod.String(method),
		attrKind.String(kind.String()),
		attrStatus.String(status),
	))
	if kind == rpc.KindRequest {
		in.requestTiming.Record(ctx, float64(time.Since(started).Microseconds())/1000, metric.WithAttributes(
			attrMethod.String(method),
		))
	}
}
