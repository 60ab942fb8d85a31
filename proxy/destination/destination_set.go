package destination

import (
	"context"
	"errors"
	"io"
	"net/netip"

	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	logging "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/amargherio/linkerd2-proxy/pkg/prom"
)

type addrCache = Cache[netip.AddrPort, Metadata]

func newAddrCache() *addrCache {
	return newCache[netip.AddrPort, Metadata](addrPortLess, Metadata.Equal)
}

// destinationSet holds the state of a single resolution: the cached
// endpoints (once the control plane has answered authoritatively), the
// remote query, and the local responders subscribed to the authority.
//
// All of a set's interior state is written under the Resolver's lock,
// by its poll loop and by Subscribe; the set itself never blocks.
type destinationSet struct {
	addrs      exists[*addrCache]
	query      *remoteStream
	responders []*Responder

	// updatesFmt counts applied stream updates for the admin endpoint's
	// hand-rendered exposition tree; metrics feeds the shared prometheus
	// registry.
	updatesFmt prom.Counter
	metrics    resolutionMetrics

	log *logging.Entry
}

// newDestinationSet opens a fresh subscription for authority and
// registers the initial responder. The endpoint set is unknown until the
// control plane first answers.
func newDestinationSet(ctx context.Context, authority Authority, responder *Responder, client Client, log *logging.Entry) *destinationSet {
	ds := &destinationSet{
		addrs:      unknown[*addrCache](),
		responders: []*Responder{responder},
		metrics:    resolutionVecs.newResolutionMetrics(authority),
		log: log.WithFields(logging.Fields{
			"component": "destination-set",
			"authority": authority.String(),
		}),
	}
	ds.connect(ctx, authority, client, "connect")
	return ds
}

func (ds *destinationSet) connect(ctx context.Context, authority Authority, client Client, reason string) {
	stream, err := client.Resolve(ctx, authority, reason)
	if err != nil {
		ds.log.Errorf("Failed to open destination stream (%s): %s", reason, err)
		ds.query = needsReconnect()
		return
	}
	ds.query = connectedOrConnecting(stream)
}

// reconnect replaces the query with a fresh subscription. The cached
// endpoints are left in place; the reset flag set at disconnect time
// reconciles them against the new stream's snapshot.
func (ds *destinationSet) reconnect(ctx context.Context, authority Authority, client Client) {
	ds.connect(ctx, authority, client, "reconnect")
}

// addResponder registers another consumer. If the endpoint set is
// already known, the responder is caught up synchronously with one Add
// per cached endpoint, in sorted address order; it then observes the
// same live diffs as every other responder.
func (ds *destinationSet) addResponder(r *Responder) {
	ds.responders = append(ds.responders, r)
	cache, ok := ds.addrs.value()
	if !ok {
		return
	}
	for _, k := range cache.Keys() {
		v, _ := cache.Get(k)
		if !r.send(Update{Kind: UpdateAdd, Addr: k, Metadata: v.Clone()}) {
			// The queue is unbounded and the consumer has not yet seen
			// its receiver; a failed catch-up send is a programmer
			// error, not a dead consumer.
			ds.log.Panicf("failed initial send to new responder for %s", k)
		}
	}
}

// retainActive drops responders whose consumer has stopped.
func (ds *destinationSet) retainActive() {
	alive := ds.responders[:0]
	for _, r := range ds.responders {
		if r.isAlive() {
			alive = append(alive, r)
		}
	}
	ds.responders = alive
}

func (ds *destinationSet) isActive() bool {
	return len(ds.responders) > 0
}

// close tears down any in-flight subscription.
func (ds *destinationSet) close() {
	if ds.query != nil && ds.query.stream != nil {
		ds.query.stream.Close()
	}
}

// pollDestination advances the resolution's state machine, draining the
// stream greedily and broadcasting each resulting diff. It returns true
// when the supervisor should schedule a reconnect.
func (ds *destinationSet) pollDestination(authority Authority) bool {
	if ds.query == nil {
		// The control plane rejected the authority. The rejection
		// already broadcast NoEndpoints and revoked the cache, so there
		// is nothing left to confirm.
		return false
	}
	if ds.query.state == stateNeedsReconnect {
		return false
	}

	for {
		update, err := ds.query.stream.Poll()
		switch {
		case err == nil:
			ds.applyUpdate(update)

		case errors.Is(err, ErrNotReady):
			return false

		case errors.Is(err, io.EOF):
			ds.log.Debugf("Destination stream for %s ended; scheduling reconnect", authority)
			ds.disconnected()
			return true

		case status.Code(err) == codes.InvalidArgument:
			// The control plane cannot serve this authority; do not
			// retry.
			ds.log.Warnf("Destination rejected %s: %s", authority, err)
			ds.query.stream.Close()
			ds.query = nil
			ds.noEndpoints(false)
			return false

		default:
			ds.log.Errorf("Destination stream for %s failed: %s", authority, err)
			ds.disconnected()
			return true
		}
	}
}

// disconnected arms the cache reset so the next snapshot diffs cleanly,
// and parks the query until the supervisor reconnects.
func (ds *destinationSet) disconnected() {
	if cache, ok := ds.addrs.value(); ok {
		cache.SetResetOnNextModification()
	}
	ds.query.stream.Close()
	ds.query = needsReconnect()
}

func (ds *destinationSet) applyUpdate(update *pb.Update) {
	ds.updatesFmt.Incr()
	ds.metrics.incUpdates()
	switch u := update.GetUpdate().(type) {
	case *pb.Update_Add:
		ds.addAddrs(u.Add)
	case *pb.Update_Remove:
		ds.removeAddrs(u.Remove)
	case *pb.Update_NoEndpoints:
		ds.noEndpoints(u.NoEndpoints.GetExists())
	default:
		ds.log.Warnf("Ignoring unknown update variant %T", update.GetUpdate())
	}
}

func (ds *destinationSet) addAddrs(set *pb.WeightedAddrSet) {
	entries := decodeAddrSet(set, ds.log)
	ds.ensureCache().UpdateUnion(entries, ds.onChange)
}

func (ds *destinationSet) removeAddrs(set *pb.AddrSet) {
	addrs := decodeAddrs(set, ds.log)
	ds.ensureCache().Remove(addrs, ds.onChange)
}

// ensureCache transitions Unknown or No to Yes(empty), returning the
// live cache.
func (ds *destinationSet) ensureCache() *addrCache {
	if cache, ok := ds.addrs.value(); ok {
		return cache
	}
	cache := newAddrCache()
	ds.addrs = yes(cache)
	return cache
}

// noEndpoints tells every responder the authority has no endpoints,
// revokes any cached entries, and records whether the authority itself
// exists.
func (ds *destinationSet) noEndpoints(exists bool) {
	ds.log.Debugf("No endpoints (exists=%t)", exists)
	ds.broadcast(Update{Kind: UpdateNoEndpoints})
	if cache, ok := ds.addrs.value(); ok {
		cache.Clear(ds.onChange)
	}
	if exists {
		ds.ensureCache()
	} else {
		ds.addrs = no[*addrCache]()
	}
}

// onChange translates a cache diff into a consumer update and broadcasts
// it. A Modification is delivered as an Add; consumers treat a repeated
// Add as a metadata replacement.
func (ds *destinationSet) onChange(change Change[netip.AddrPort, Metadata]) {
	var update Update
	switch change.Kind {
	case Insertion, Modification:
		update = Update{Kind: UpdateAdd, Addr: change.Key, Metadata: change.Value}
	case Removal:
		update = Update{Kind: UpdateRemove, Addr: change.Key}
	}
	ds.broadcast(update)
}

// broadcast sends update to every responder, pruning those whose
// consumer is gone. Survivor order is preserved.
func (ds *destinationSet) broadcast(update Update) {
	alive := ds.responders[:0]
	for _, r := range ds.responders {
		if r.send(update.clone()) {
			alive = append(alive, r)
		} else {
			ds.log.Debugf("Dropping stopped responder")
		}
	}
	ds.responders = alive
}
