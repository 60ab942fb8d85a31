package destination

import (
	"context"
	"net/netip"
	"strings"
	"testing"
)

func TestResolverSubscribeSharesResolution(t *testing.T) {
	stream := &mockStream{}
	client := &mockClient{streams: []*mockStream{stream}}
	r := NewResolver(client, testLog(t))
	ctx := context.Background()

	rx1 := r.Subscribe(ctx, testAuthority)
	stream.push(addUpdate(nil, weighted(t, "10.0.0.1:80", nil)))
	r.Poll(ctx)

	updates := drainReceiver(rx1)
	if len(updates) != 1 || updates[0].Kind != UpdateAdd {
		t.Fatalf("expected one Add, got %+v", updates)
	}

	// A second subscription shares the stream and is caught up from the
	// cache.
	rx2 := r.Subscribe(ctx, testAuthority)
	updates = drainReceiver(rx2)
	if len(updates) != 1 || updates[0].Addr != netip.MustParseAddrPort("10.0.0.1:80") {
		t.Fatalf("expected catch-up Add, got %+v", updates)
	}
	if len(client.reasons) != 1 {
		t.Fatalf("expected a single connect, got %v", client.reasons)
	}

	rx1.Stop()
	rx2.Stop()
}

func TestResolverRetiresIdleResolutions(t *testing.T) {
	stream := &mockStream{}
	client := &mockClient{streams: []*mockStream{stream}}
	r := NewResolver(client, testLog(t))
	ctx := context.Background()

	rx := r.Subscribe(ctx, testAuthority)
	r.Poll(ctx)
	if len(r.sets) != 1 {
		t.Fatalf("expected one resolution, got %d", len(r.sets))
	}

	rx.Stop()
	r.Poll(ctx)
	if len(r.sets) != 0 {
		t.Fatalf("expected the idle resolution to be retired, got %d", len(r.sets))
	}
	if !stream.closed {
		t.Fatal("expected the retired resolution's stream to be closed")
	}
}

func TestResolverFmtMetrics(t *testing.T) {
	stream := &mockStream{}
	client := &mockClient{streams: []*mockStream{stream}}
	r := NewResolver(client, testLog(t))
	ctx := context.Background()

	rx := r.Subscribe(ctx, testAuthority)
	defer rx.Stop()

	stream.push(addUpdate(nil, weighted(t, "10.0.0.1:80", nil)))
	stream.push(removeUpdate(t, "10.0.0.1:80"))
	r.Poll(ctx)

	var sb strings.Builder
	if err := r.FmtMetrics(&sb); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	out := sb.String()

	expected := "# HELP discovery_updates_total Total number of destination updates applied per authority.\n" +
		"# TYPE discovery_updates_total counter\n" +
		"discovery_updates_total{authority=\"web.default.svc.cluster.local:8080\"} 2\n"
	if out != expected {
		t.Fatalf("expected:\n%s\ngot:\n%s", expected, out)
	}
}
