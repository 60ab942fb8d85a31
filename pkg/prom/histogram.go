package prom

import (
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
)

// Histogram observes uint64 values into a fixed set of cumulative
// buckets.
//
// Each bucket is rendered as a counter with an "le" label holding the
// bucket's inclusive upper bound, followed by a count and a total sum.
type Histogram struct {
	// Inclusive upper bounds, ascending. The +Inf bucket is implicit.
	bounds  []uint64
	buckets []atomic.Uint64
	inf     atomic.Uint64
	sum     atomic.Uint64
}

// NewHistogram returns a histogram with the given ascending upper bounds.
func NewHistogram(bounds ...uint64) *Histogram {
	return &Histogram{
		bounds:  bounds,
		buckets: make([]atomic.Uint64, len(bounds)),
	}
}

// Observe records a value.
func (h *Histogram) Observe(v uint64) {
	for i, b := range h.bounds {
		if v <= b {
			h.buckets[i].Add(1)
			h.sum.Add(v)
			return
		}
	}
	h.inf.Add(1)
	h.sum.Add(v)
}

// Kind implements FmtMetric.
func (*Histogram) Kind() string { return "histogram" }

// FmtMetric implements FmtMetric.
func (h *Histogram) FmtMetric(w io.Writer, name string) error {
	return h.fmtBuckets(w, name, nil)
}

// FmtMetricLabeled implements FmtMetric.
func (h *Histogram) FmtMetricLabeled(w io.Writer, name string, labels FmtLabels) error {
	return h.fmtBuckets(w, name, labels)
}

func (h *Histogram) fmtBuckets(w io.Writer, name string, labels FmtLabels) error {
	bucketName := name + "_bucket"
	var cum uint64
	for i, b := range h.bounds {
		cum += h.buckets[i].Load()
		le := Label{Name: "le", Value: strconv.FormatUint(b, 10)}
		if err := fmtLabeledValue(w, bucketName, Pair(labels, le), cum%MaxPreciseValue); err != nil {
			return err
		}
	}
	cum += h.inf.Load()
	le := Label{Name: "le", Value: "+Inf"}
	if err := fmtLabeledValue(w, bucketName, Pair(labels, le), cum%MaxPreciseValue); err != nil {
		return err
	}

	if err := h.fmtScalar(w, name+"_count", labels, cum); err != nil {
		return err
	}
	return h.fmtScalar(w, name+"_sum", labels, h.sum.Load())
}

func (h *Histogram) fmtScalar(w io.Writer, name string, labels FmtLabels, v uint64) error {
	if labels == nil {
		_, err := fmt.Fprintf(w, "%s %d\n", name, v%MaxPreciseValue)
		return err
	}
	return fmtLabeledValue(w, name, labels, v%MaxPreciseValue)
}
