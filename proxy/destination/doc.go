// Package destination maintains the proxy's view of backend endpoints
// for upstream authorities.
//
// Each authority is resolved through a long-lived streaming subscription
// to the control plane's Destination service. A destinationSet
// multiplexes all local consumers of one authority onto a single remote
// stream, reconciling incremental updates against a local address cache
// and fanning the resulting diffs out to every subscribed Receiver. The
// Resolver supervises the full set of resolutions.
package destination
