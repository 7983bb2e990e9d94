package transport

import (
	"fmt"
	"net/netip"
)

// ConnectionAddr locates the signaling server. The zero value is not a
// usable address.
type ConnectionAddr struct {
	local bool
	ip    netip.Addr
	port  uint16
}

// LocalAddr is a signaling server on this machine.
func LocalAddr(port uint16) ConnectionAddr {
	return ConnectionAddr{local: true, port: port}
}

// RemoteAddr is a signaling server at ip.
func RemoteAddr(ip netip.Addr, port uint16) ConnectionAddr {
	return ConnectionAddr{ip: ip, port: port}
}

// IsZero reports whether a is the unset address.
func (a ConnectionAddr) IsZero() bool {
	return !a.local && !a.ip.IsValid()
}

// IsLocal reports whether a was built with LocalAddr.
func (a ConnectionAddr) IsLocal() bool { return a.local }

// Port returns the signaling port.
func (a ConnectionAddr) Port() uint16 { return a.port }

// URL resolves a to the signaling endpoint.
func (a ConnectionAddr) URL() string {
	if a.local {
		return fmt.Sprintf("ws://0.0.0.0:%d/", a.port)
	}
	return fmt.Sprintf("ws://%s/", netip.AddrPortFrom(a.ip, a.port))
}

func (a ConnectionAddr) String() string {
	switch {
	case a.IsZero():
		return "<none>"
	case a.local:
		return fmt.Sprintf("local:%d", a.port)
	default:
		return netip.AddrPortFrom(a.ip, a.port).String()
	}
}
