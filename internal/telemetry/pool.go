package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const poolScopeName = "github.com/relicta-tech/lockable/pool"

// PoolInstruments records spans and metrics for pool operations.
// Instruments are bound to the providers installed when it is created.
type PoolInstruments struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
	events metric.Int64Counter
}

// NewPoolInstruments creates the pool instruments.
func NewPoolInstruments() *PoolInstruments {
	m := Meter(poolScopeName)
	ops, _ := m.Int64Counter("lockres.pool.operations",
		metric.WithDescription("Total pool operations executed"),
	)
	dur, _ := m.Float64Histogram("lockres.pool.operation.duration",
		metric.WithDescription("Pool operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("lockres.pool.errors",
		metric.WithDescription("Total pool operation errors"),
	)
	events, _ := m.Int64Counter("lockres.resource.events",
		metric.WithDescription("Resource domain events by name"),
	)
	return &PoolInstruments{
		tracer: Tracer(poolScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
		events: events,
	}
}

// Op is an in-flight instrumented operation.
type Op struct {
	p     *PoolInstruments
	span  trace.Span
	start time.Time
	attrs []attribute.KeyValue
}

// Start begins a span named "pool.<name>" and counts the operation.
func (p *PoolInstruments) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Op) {
	all := append([]attribute.KeyValue{attribute.String("lockres.operation", name)}, attrs...)
	ctx, span := p.tracer.Start(ctx, "pool."+name, trace.WithAttributes(all...))
	p.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, &Op{p: p, span: span, start: time.Now(), attrs: all}
}

// End records the duration and the error, if any, and ends the span.
func (o *Op) End(ctx context.Context, err error) {
	ms := float64(time.Since(o.start).Milliseconds())
	o.p.dur.Record(ctx, ms, metric.WithAttributes(o.attrs...))
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
		o.p.errs.Add(ctx, 1, metric.WithAttributes(o.attrs...))
	}
	o.span.End()
}

// RecordEvent counts a resource domain event.
func (p *PoolInstruments) RecordEvent(ctx context.Context, name string) {
	p.events.Add(ctx, 1, metric.WithAttributes(attribute.String("lockres.event", name)))
}
