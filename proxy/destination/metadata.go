package destination

import (
	"net"
	"net/netip"
	"strconv"
)

// Authority names an upstream service as a host:port pair.
type Authority struct {
	Name string
	Port uint16
}

func (a Authority) String() string {
	return net.JoinHostPort(a.Name, strconv.Itoa(int(a.Port)))
}

// ProtocolHint indicates the protocol an endpoint is known to support.
type ProtocolHint int

const (
	// HintUnknown is used when the control plane sent no hint, or one
	// this proxy does not recognize.
	HintUnknown ProtocolHint = iota
	// HintH2 indicates the endpoint supports transparent HTTP/2 upgrade.
	HintH2
)

func (h ProtocolHint) String() string {
	if h == HintH2 {
		return "h2"
	}
	return "unknown"
}

// Label is one endpoint metric label.
type Label struct {
	Name  string
	Value string
}

// Metadata carries the per-endpoint data distributed by the control
// plane: the merged metric labels (sorted by name), a protocol hint, an
// optional TLS identity, and a load-balancing weight.
type Metadata struct {
	Labels   []Label
	Hint     ProtocolHint
	Identity string
	Weight   uint32
}

// Equal reports whole-value equality, label order included.
func (m Metadata) Equal(o Metadata) bool {
	if m.Hint != o.Hint || m.Identity != o.Identity || m.Weight != o.Weight {
		return false
	}
	if len(m.Labels) != len(o.Labels) {
		return false
	}
	for i, l := range m.Labels {
		if o.Labels[i] != l {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no storage with m.
func (m Metadata) Clone() Metadata {
	c := m
	if m.Labels != nil {
		c.Labels = make([]Label, len(m.Labels))
		copy(c.Labels, m.Labels)
	}
	return c
}

// UpdateKind discriminates the updates delivered to consumers.
type UpdateKind int

const (
	// UpdateAdd introduces an endpoint or replaces its metadata.
	UpdateAdd UpdateKind = iota
	// UpdateRemove retires an endpoint.
	UpdateRemove
	// UpdateNoEndpoints invalidates every endpoint previously added on
	// the same subscription.
	UpdateNoEndpoints
)

// Update is one discovery event delivered to a consumer.
type Update struct {
	Kind     UpdateKind
	Addr     netip.AddrPort
	Metadata Metadata
}

func (u Update) clone() Update {
	c := u
	c.Metadata = u.Metadata.Clone()
	return c
}

func addrPortLess(a, b netip.AddrPort) bool {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c < 0
	}
	return a.Port() < b.Port()
}
