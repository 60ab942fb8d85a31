package destination

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	"github.com/linkerd/linkerd2-proxy-api/go/net"
	logging "github.com/sirupsen/logrus"

	"github.com/amargherio/linkerd2-proxy/pkg/addr"
)

// decodeAddrSet converts a WeightedAddrSet into cache entries. Invalid
// entries are dropped with a warning; a bad address never aborts the
// batch.
func decodeAddrSet(set *pb.WeightedAddrSet, log *logging.Entry) []Entry[netip.AddrPort, Metadata] {
	entries := make([]Entry[netip.AddrPort, Metadata], 0, len(set.GetAddrs()))
	for _, wa := range set.GetAddrs() {
		ap, meta, err := decodeWeightedAddr(wa, set.GetMetricLabels(), log)
		if err != nil {
			log.Warnf("Ignoring invalid endpoint in update: %s", err)
			continue
		}
		entries = append(entries, Entry[netip.AddrPort, Metadata]{Key: ap, Value: meta})
	}
	return entries
}

// decodeAddrs converts an AddrSet into cache keys, dropping unparseable
// addresses with a warning.
func decodeAddrs(set *pb.AddrSet, log *logging.Entry) []netip.AddrPort {
	addrs := make([]netip.AddrPort, 0, len(set.GetAddrs()))
	for _, a := range set.GetAddrs() {
		ap, err := decodeTCPAddress(a)
		if err != nil {
			log.Warnf("Ignoring invalid address in remove: %s", err)
			continue
		}
		addrs = append(addrs, ap)
	}
	return addrs
}

func decodeWeightedAddr(wa *pb.WeightedAddr, setLabels map[string]string, log *logging.Entry) (netip.AddrPort, Metadata, error) {
	ap, err := decodeTCPAddress(wa.GetAddr())
	if err != nil {
		return netip.AddrPort{}, Metadata{}, err
	}

	meta := Metadata{
		Labels: mergeLabels(setLabels, wa.GetMetricLabels()),
		Hint:   decodeProtocolHint(wa.GetProtocolHint()),
		Weight: wa.GetWeight(),
	}

	if id := wa.GetTlsIdentity(); id != nil {
		name, err := decodeTLSIdentity(id)
		if err != nil {
			// A bad identity disables TLS for the endpoint but does not
			// invalidate it.
			log.Warnf("Ignoring TLS identity for %s: %s", ap, err)
		} else {
			meta.Identity = name
		}
	}

	return ap, meta, nil
}

func decodeTCPAddress(a *net.TcpAddress) (netip.AddrPort, error) {
	if a == nil {
		return netip.AddrPort{}, errors.New("missing address")
	}
	if a.GetIp() == nil {
		return netip.AddrPort{}, errors.New("missing IP address")
	}
	return addr.ProxyAddressToAddrPort(a)
}

// mergeLabels unions the set-level and per-endpoint labels, with the
// per-endpoint value winning collisions, sorted by name.
func mergeLabels(setLabels, addrLabels map[string]string) []Label {
	merged := make(map[string]string, len(setLabels)+len(addrLabels))
	for k, v := range setLabels {
		merged[k] = v
	}
	for k, v := range addrLabels {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}

	labels := make([]Label, 0, len(merged))
	for k, v := range merged {
		labels = append(labels, Label{Name: k, Value: v})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels
}

func decodeProtocolHint(hint *pb.ProtocolHint) ProtocolHint {
	// Unrecognized hint variants degrade to HintUnknown rather than
	// failing the endpoint.
	if _, ok := hint.GetProtocol().(*pb.ProtocolHint_H2_); ok {
		return HintH2
	}
	return HintUnknown
}

func decodeTLSIdentity(id *pb.TlsIdentity) (string, error) {
	strategy, ok := id.GetStrategy().(*pb.TlsIdentity_DnsLikeIdentity_)
	if !ok {
		return "", fmt.Errorf("unexpected TLS identity strategy %T", id.GetStrategy())
	}
	name := strategy.DnsLikeIdentity.GetName()
	if err := validateDNSName(name); err != nil {
		return "", err
	}
	return name, nil
}

// validateDNSName checks that name is a well-formed DNS name per RFC
// 1123: dot-separated labels of alphanumerics and interior hyphens, at
// most 253 characters overall.
func validateDNSName(name string) error {
	if name == "" {
		return errors.New("empty DNS name")
	}
	if len(name) > 253 {
		return fmt.Errorf("DNS name exceeds 253 characters: %q", name)
	}
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > 63 {
			return fmt.Errorf("invalid DNS label in %q", name)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("invalid DNS label in %q", name)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || c == '-') {
				return fmt.Errorf("invalid DNS label in %q", name)
			}
		}
	}
	return nil
}
