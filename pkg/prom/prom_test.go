package prom

import (
	"io"
	"strings"
	"testing"
)

func render(t *testing.T, f func(w *strings.Builder) error) string {
	t.Helper()
	var sb strings.Builder
	if err := f(&sb); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return sb.String()
}

func TestCounterFmtMetric(t *testing.T) {
	var c Counter
	c.Add(42)

	m := NewMetric("requests_total", "Total requests.", &c)
	out := render(t, func(w *strings.Builder) error { return m.FmtMetric(w, &c) })

	expected := "# HELP requests_total Total requests.\n" +
		"# TYPE requests_total counter\n" +
		"requests_total 42\n"
	if out != expected {
		t.Fatalf("expected:\n%s\ngot:\n%s", expected, out)
	}
}

func TestCounterWrapsAtMaxPreciseValue(t *testing.T) {
	var c Counter
	c.Add(MaxPreciseValue + 7)

	out := render(t, func(w *strings.Builder) error { return c.FmtMetric(w, "c") })
	if out != "c 7\n" {
		t.Fatalf("expected value to wrap at 2^53, got %q", out)
	}

	// The raw value is not wrapped at mutation time.
	if c.Value() != MaxPreciseValue+7 {
		t.Fatalf("raw value mutated: %d", c.Value())
	}
}

func TestGauge(t *testing.T) {
	var g Gauge
	g.Set(3)
	g.Incr()
	g.Decr()
	g.Decr()

	out := render(t, func(w *strings.Builder) error {
		return g.FmtMetricLabeled(w, "open_streams", Label{Name: "authority", Value: "web:8080"})
	})
	if out != "open_streams{authority=\"web:8080\"} 2\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLabelPairs(t *testing.T) {
	a := Label{Name: "a", Value: "1"}
	b := Label{Name: "b", Value: "2"}

	cases := []struct {
		name     string
		labels   FmtLabels
		expected string
	}{
		{"both", Pair(a, b), `a="1",b="2"`},
		{"left absent", Pair(nil, b), `b="2"`},
		{"right absent", Pair(a, nil), `a="1"`},
		{"both absent", Pair(nil, nil), ``},
		{"slice", Labels{a, b}, `a="1",b="2"`},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			out := render(t, func(w *strings.Builder) error { return c.labels.FmtLabels(w) })
			if out != c.expected {
				t.Fatalf("expected %q, got %q", c.expected, out)
			}
		})
	}
}

func TestLabelValueEscaping(t *testing.T) {
	l := Label{Name: "path", Value: "a\"b\\c\nd"}
	out := render(t, func(w *strings.Builder) error { return l.FmtLabels(w) })
	if out != `path="a\"b\\c\nd"` {
		t.Fatalf("unexpected escaping: %q", out)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram(10, 100)
	h.Observe(1)
	h.Observe(10)
	h.Observe(50)
	h.Observe(5000)

	out := render(t, func(w *strings.Builder) error { return h.FmtMetric(w, "latency") })
	expected := "latency_bucket{le=\"10\"} 2\n" +
		"latency_bucket{le=\"100\"} 3\n" +
		"latency_bucket{le=\"+Inf\"} 4\n" +
		"latency_count 4\n" +
		"latency_sum 5061\n"
	if out != expected {
		t.Fatalf("expected:\n%s\ngot:\n%s", expected, out)
	}
}

func TestHistogramLabeled(t *testing.T) {
	h := NewHistogram(10)
	h.Observe(3)

	out := render(t, func(w *strings.Builder) error {
		return h.FmtMetricLabeled(w, "latency", Label{Name: "svc", Value: "x"})
	})
	expected := "latency_bucket{svc=\"x\",le=\"10\"} 1\n" +
		"latency_bucket{svc=\"x\",le=\"+Inf\"} 1\n" +
		"latency_count{svc=\"x\"} 1\n" +
		"latency_sum{svc=\"x\"} 3\n"
	if out != expected {
		t.Fatalf("expected:\n%s\ngot:\n%s", expected, out)
	}
}

func TestAndThen(t *testing.T) {
	var a, b Counter
	a.Add(1)
	b.Add(2)

	ma := NewMetric("a_total", "A.", &a)
	mb := NewMetric("b_total", "B.", &b)

	f := AndThen(
		FmtMetricsFunc(func(w io.Writer) error { return ma.FmtMetric(w, &a) }),
		AndThen(NoMetrics{}, FmtMetricsFunc(func(w io.Writer) error { return mb.FmtMetric(w, &b) })),
	)

	out := render(t, func(w *strings.Builder) error { return f.FmtMetrics(w) })
	if !strings.Contains(out, "a_total 1\n") || !strings.Contains(out, "b_total 2\n") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Index(out, "a_total") > strings.Index(out, "b_total") {
		t.Fatalf("blocks rendered out of order:\n%s", out)
	}
}

func TestFmtScopes(t *testing.T) {
	type scope struct{ conns Counter }

	s1 := &scope{}
	s1.conns.Add(5)
	s2 := &scope{}
	s2.conns.Add(9)

	m := Metric{Name: "conns_total", Help: "Connections.", Kind: "counter"}
	scopes := []Labeled[*scope]{
		{Labels: Label{Name: "peer", Value: "src"}, Scope: s1},
		{Labels: Label{Name: "peer", Value: "dst"}, Scope: s2},
	}

	out := render(t, func(w *strings.Builder) error {
		return FmtScopes(w, m, scopes, func(s *scope) FmtMetric { return &s.conns })
	})
	expected := "# HELP conns_total Connections.\n" +
		"# TYPE conns_total counter\n" +
		"conns_total{peer=\"src\"} 5\n" +
		"conns_total{peer=\"dst\"} 9\n"
	if out != expected {
		t.Fatalf("expected:\n%s\ngot:\n%s", expected, out)
	}
}
