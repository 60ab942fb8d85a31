package prom

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Gauge is an instantaneous metric value.
//
// Like Counter, the value wraps at MaxPreciseValue when rendered.
type Gauge struct {
	value atomic.Uint64
}

// Set replaces the gauge's value.
func (g *Gauge) Set(n uint64) {
	g.value.Store(n)
}

// Incr increments the gauge by one.
func (g *Gauge) Incr() {
	g.value.Add(1)
}

// Decr decrements the gauge by one.
func (g *Gauge) Decr() {
	g.value.Add(^uint64(0))
}

// Value returns the current raw value.
func (g *Gauge) Value() uint64 {
	return g.value.Load()
}

// Kind implements FmtMetric.
func (*Gauge) Kind() string { return "gauge" }

// FmtMetric implements FmtMetric.
func (g *Gauge) FmtMetric(w io.Writer, name string) error {
	_, err := fmt.Fprintf(w, "%s %d\n", name, g.Value()%MaxPreciseValue)
	return err
}

// FmtMetricLabeled implements FmtMetric.
func (g *Gauge) FmtMetricLabeled(w io.Writer, name string, labels FmtLabels) error {
	return fmtLabeledValue(w, name, labels, g.Value()%MaxPreciseValue)
}
