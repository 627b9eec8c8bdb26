package observability

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// instruments creates instruments on the package meter and keeps every
// creation error, so constructors check once at the end.
type instruments struct {
	meter metric.Meter
	err   error
}

func newInstruments() *instruments {
	return &instruments{meter: otel.Meter(instrumentationName)}
}

func (b *instruments) keep(err error) {
	b.err = errors.Join(b.err, err)
}

func (b *instruments) counter(name, description, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	b.keep(err)
	return c
}

func (b *instruments) upDown(name, description, unit string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	b.keep(err)
	return c
}

func (b *instruments) histogram(name, description, unit string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	b.keep(err)
	return h
}

func (b *instruments) sizeHistogram(name, description string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(description), metric.WithUnit("By"))
	b.keep(err)
	return h
}
