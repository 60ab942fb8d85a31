package addr

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	pb "github.com/linkerd/linkerd2-proxy-api/go/net"
)

// ProxyAddressToAddrPort converts a Proxy API TcpAddress into a native
// netip.AddrPort. The port is narrowed to 16 bits; the Destination API
// carries it as a uint32.
func ProxyAddressToAddrPort(addr *pb.TcpAddress) (netip.AddrPort, error) {
	ip, err := ProxyIPToAddr(addr.GetIp())
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(ip, uint16(addr.GetPort())), nil
}

// ProxyIPToAddr converts a Proxy API IPAddress into a native netip.Addr.
//
// IPv6 addresses are transported as two big-endian 64-bit halves.
func ProxyIPToAddr(ip *pb.IPAddress) (netip.Addr, error) {
	switch v := ip.GetIp().(type) {
	case *pb.IPAddress_Ipv4:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v.Ipv4)
		return netip.AddrFrom4(b), nil
	case *pb.IPAddress_Ipv6:
		var b [16]byte
		binary.BigEndian.PutUint64(b[:8], v.Ipv6.GetFirst())
		binary.BigEndian.PutUint64(b[8:], v.Ipv6.GetLast())
		return netip.AddrFrom16(b), nil
	}
	return netip.Addr{}, fmt.Errorf("IP address variant not set: %+v", ip)
}

// ProxyAddressToString formats a Proxy API TcpAddress as a string.
func ProxyAddressToString(addr *pb.TcpAddress) string {
	ap, err := ProxyAddressToAddrPort(addr)
	if err != nil {
		return ""
	}
	return ap.String()
}

// ParseProxyIP parses an IP address string into a Proxy API IPAddress.
func ParseProxyIP(ip string) (*pb.IPAddress, error) {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}
	return AddrToProxyIP(a), nil
}

// AddrToProxyIP converts a native netip.Addr into a Proxy API IPAddress.
func AddrToProxyIP(a netip.Addr) *pb.IPAddress {
	if a.Is4() {
		b := a.As4()
		return &pb.IPAddress{
			Ip: &pb.IPAddress_Ipv4{
				Ipv4: binary.BigEndian.Uint32(b[:]),
			},
		}
	}
	b := a.As16()
	return &pb.IPAddress{
		Ip: &pb.IPAddress_Ipv6{
			Ipv6: &pb.IPv6{
				First: binary.BigEndian.Uint64(b[:8]),
				Last:  binary.BigEndian.Uint64(b[8:]),
			},
		},
	}
}

// AddrPortToProxyAddress converts a native netip.AddrPort into a Proxy API
// TcpAddress.
func AddrPortToProxyAddress(ap netip.AddrPort) *pb.TcpAddress {
	return &pb.TcpAddress{
		Ip:   AddrToProxyIP(ap.Addr()),
		Port: uint32(ap.Port()),
	}
}
