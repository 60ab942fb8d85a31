package prom

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Counter is a monotonically increasing metric value.
//
// The value is held as a uint64 and wrapped to MaxPreciseValue at render
// time so the exposed float64 remains faithful.
type Counter struct {
	value atomic.Uint64
}

// Incr increments the counter by one.
func (c *Counter) Incr() {
	c.Add(1)
}

// Add increments the counter by n.
func (c *Counter) Add(n uint64) {
	c.value.Add(n)
}

// Value returns the current raw value.
func (c *Counter) Value() uint64 {
	return c.value.Load()
}

// Kind implements FmtMetric.
func (*Counter) Kind() string { return "counter" }

// FmtMetric implements FmtMetric.
func (c *Counter) FmtMetric(w io.Writer, name string) error {
	_, err := fmt.Fprintf(w, "%s %d\n", name, c.Value()%MaxPreciseValue)
	return err
}

// FmtMetricLabeled implements FmtMetric.
func (c *Counter) FmtMetricLabeled(w io.Writer, name string, labels FmtLabels) error {
	return fmtLabeledValue(w, name, labels, c.Value()%MaxPreciseValue)
}

func fmtLabeledValue(w io.Writer, name string, labels FmtLabels, v uint64) error {
	if _, err := fmt.Fprintf(w, "%s{", name); err != nil {
		return err
	}
	if labels != nil {
		if err := labels.FmtLabels(w); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "} %d\n", v)
	return err
}
