package destination

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	logging "github.com/sirupsen/logrus"

	"github.com/amargherio/linkerd2-proxy/pkg/prom"
)

const (
	// DefaultPollInterval paces the supervisor's reconciliation passes.
	DefaultPollInterval = 100 * time.Millisecond

	// reconnectBackoff delays reopening a stream after a disconnect.
	reconnectBackoff = 500 * time.Millisecond
)

var updatesMetric = prom.Metric{
	Name: "discovery_updates_total",
	Help: "Total number of destination updates applied per authority.",
	Kind: "counter",
}

type resolution struct {
	set         *destinationSet
	reconnectAt time.Time
}

// Resolver supervises all destination resolutions: it owns one
// destinationSet per subscribed authority, drives each set's
// reconciliation loop from a single goroutine, reopens streams after
// transient failures, and tears down sets nobody listens to anymore.
type Resolver struct {
	client Client
	log    *logging.Entry

	mu   sync.Mutex
	sets map[Authority]*resolution
}

// NewResolver creates a Resolver that opens subscriptions through
// client.
func NewResolver(client Client, log *logging.Entry) *Resolver {
	return &Resolver{
		client: client,
		log:    log.WithField("component", "resolver"),
		sets:   make(map[Authority]*resolution),
	}
}

// Subscribe registers a consumer for authority. The first subscription
// for an authority opens its destination stream; later ones share it and
// are caught up with the currently-known endpoints.
func (r *Resolver) Subscribe(ctx context.Context, authority Authority) *Receiver {
	responder, receiver := newResponder()

	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.sets[authority]; ok {
		res.set.addResponder(responder)
		return receiver
	}

	r.log.Debugf("Establishing resolution for %s", authority)
	set := newDestinationSet(ctx, authority, responder, r.client, r.log)
	r.sets[authority] = &resolution{set: set}
	return receiver
}

// Poll runs one reconciliation pass over every resolution: reconnecting
// streams whose backoff has elapsed, draining buffered updates, and
// collecting sets with no remaining consumers.
func (r *Resolver) Poll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for authority, res := range r.sets {
		if res.set.query != nil && res.set.query.state == stateNeedsReconnect && !now.Before(res.reconnectAt) {
			res.set.reconnect(ctx, authority, r.client)
			res.set.metrics.incReconnects()
		}

		if res.set.pollDestination(authority) {
			res.reconnectAt = time.Now().Add(reconnectBackoff)
		}

		res.set.retainActive()
		if !res.set.isActive() {
			r.log.Debugf("Retiring idle resolution for %s", authority)
			res.set.close()
			res.set.metrics.unregister()
			delete(r.sets, authority)
		}
	}
}

// Run drives Poll until ctx is done.
func (r *Resolver) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

func (r *Resolver) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for authority, res := range r.sets {
		res.set.close()
		res.set.metrics.unregister()
		delete(r.sets, authority)
	}
}

// FmtMetrics renders the per-authority update counters in the exposition
// format, implementing prom.FmtMetrics for the admin endpoint.
func (r *Resolver) FmtMetrics(w io.Writer) error {
	r.mu.Lock()
	authorities := make([]Authority, 0, len(r.sets))
	for authority := range r.sets {
		authorities = append(authorities, authority)
	}
	sort.Slice(authorities, func(i, j int) bool {
		return authorities[i].String() < authorities[j].String()
	})
	scopes := make([]prom.Labeled[*destinationSet], 0, len(authorities))
	for _, authority := range authorities {
		scopes = append(scopes, prom.Labeled[*destinationSet]{
			Labels: prom.Label{Name: "authority", Value: authority.String()},
			Scope:  r.sets[authority].set,
		})
	}
	r.mu.Unlock()

	return prom.FmtScopes(w, updatesMetric, scopes, func(s *destinationSet) prom.FmtMetric {
		return &s.updatesFmt
	})
}
