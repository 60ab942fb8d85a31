package destination

import (
	"net/netip"
	"testing"

	"github.com/go-test/deep"
	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	"github.com/linkerd/linkerd2-proxy-api/go/net"
	logging "github.com/sirupsen/logrus"

	"github.com/amargherio/linkerd2-proxy/pkg/addr"
)

func testLog(t *testing.T) *logging.Entry {
	return logging.WithField("test", t.Name())
}

func tcpAddr(t *testing.T, hostport string) *net.TcpAddress {
	t.Helper()
	return addr.AddrPortToProxyAddress(netip.MustParseAddrPort(hostport))
}

func TestDecodeAddrSetMergesLabels(t *testing.T) {
	set := &pb.WeightedAddrSet{
		Addrs: []*pb.WeightedAddr{{
			Addr:         tcpAddr(t, "10.0.0.1:80"),
			Weight:       9,
			MetricLabels: map[string]string{"az": "a", "svc": "addr-wins"},
		}},
		MetricLabels: map[string]string{"svc": "x", "ns": "default"},
	}

	entries := decodeAddrSet(set, testLog(t))
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	expected := Metadata{
		Labels: []Label{
			{Name: "az", Value: "a"},
			{Name: "ns", Value: "default"},
			{Name: "svc", Value: "addr-wins"},
		},
		Hint:   HintUnknown,
		Weight: 9,
	}
	if diff := deep.Equal(entries[0].Value, expected); diff != nil {
		t.Fatalf("unexpected metadata: %v", diff)
	}
	if entries[0].Key != netip.MustParseAddrPort("10.0.0.1:80") {
		t.Fatalf("unexpected address: %s", entries[0].Key)
	}
}

func TestDecodeAddrSetDropsInvalidEntries(t *testing.T) {
	set := &pb.WeightedAddrSet{
		Addrs: []*pb.WeightedAddr{
			{Addr: nil},
			{Addr: &net.TcpAddress{Port: 80}},
			{Addr: &net.TcpAddress{Ip: &net.IPAddress{}, Port: 80}},
			{Addr: tcpAddr(t, "10.0.0.2:80")},
		},
	}

	entries := decodeAddrSet(set, testLog(t))
	if len(entries) != 1 {
		t.Fatalf("expected invalid entries to be dropped, got %d entries", len(entries))
	}
	if entries[0].Key != netip.MustParseAddrPort("10.0.0.2:80") {
		t.Fatalf("unexpected surviving address: %s", entries[0].Key)
	}
}

func TestDecodeIPv6Halves(t *testing.T) {
	set := &pb.WeightedAddrSet{
		Addrs: []*pb.WeightedAddr{{
			Addr: &net.TcpAddress{
				Ip: &net.IPAddress{Ip: &net.IPAddress_Ipv6{Ipv6: &net.IPv6{
					First: 0x20010db800000000,
					Last:  0x0000000000000042,
				}}},
				Port: 443,
			},
		}},
	}

	entries := decodeAddrSet(set, testLog(t))
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if expected := netip.MustParseAddrPort("[2001:db8::42]:443"); entries[0].Key != expected {
		t.Fatalf("expected %s, got %s", expected, entries[0].Key)
	}
}

func TestDecodeProtocolHint(t *testing.T) {
	cases := []struct {
		name     string
		hint     *pb.ProtocolHint
		expected ProtocolHint
	}{
		{"nil", nil, HintUnknown},
		{"empty", &pb.ProtocolHint{}, HintUnknown},
		{"h2", &pb.ProtocolHint{Protocol: &pb.ProtocolHint_H2_{H2: &pb.ProtocolHint_H2{}}}, HintH2},
		{"opaque", &pb.ProtocolHint{Protocol: &pb.ProtocolHint_Opaque_{Opaque: &pb.ProtocolHint_Opaque{}}}, HintUnknown},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			if got := decodeProtocolHint(c.hint); got != c.expected {
				t.Fatalf("expected %s, got %s", c.expected, got)
			}
		})
	}
}

func TestDecodeTLSIdentity(t *testing.T) {
	wa := &pb.WeightedAddr{
		Addr: tcpAddr(t, "10.0.0.1:80"),
		TlsIdentity: &pb.TlsIdentity{
			Strategy: &pb.TlsIdentity_DnsLikeIdentity_{
				DnsLikeIdentity: &pb.TlsIdentity_DnsLikeIdentity{
					Name: "default.ns.serviceaccount.identity.linkerd.cluster.local",
				},
			},
		},
	}

	_, meta, err := decodeWeightedAddr(wa, nil, testLog(t))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if meta.Identity != "default.ns.serviceaccount.identity.linkerd.cluster.local" {
		t.Fatalf("unexpected identity: %q", meta.Identity)
	}
}

func TestDecodeInvalidTLSIdentityKeepsEndpoint(t *testing.T) {
	wa := &pb.WeightedAddr{
		Addr: tcpAddr(t, "10.0.0.1:80"),
		TlsIdentity: &pb.TlsIdentity{
			Strategy: &pb.TlsIdentity_DnsLikeIdentity_{
				DnsLikeIdentity: &pb.TlsIdentity_DnsLikeIdentity{Name: "bad_name!"},
			},
		},
	}

	ap, meta, err := decodeWeightedAddr(wa, nil, testLog(t))
	if err != nil {
		t.Fatalf("a bad identity must not invalidate the endpoint: %s", err)
	}
	if meta.Identity != "" {
		t.Fatalf("expected identity to be dropped, got %q", meta.Identity)
	}
	if ap != netip.MustParseAddrPort("10.0.0.1:80") {
		t.Fatalf("unexpected address: %s", ap)
	}
}

func TestValidateDNSName(t *testing.T) {
	valid := []string{"a", "web.default.svc.cluster.local", "a-b.c-d", "123.example"}
	for _, name := range valid {
		if err := validateDNSName(name); err != nil {
			t.Errorf("expected %q to be valid: %s", name, err)
		}
	}

	invalid := []string{"", ".", "a..b", "-a.b", "a-.b", "a_b", "a b"}
	for _, name := range invalid {
		if err := validateDNSName(name); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}
