// Package transport implements the raw-socket PIM transmit path: an
// IPPROTO_PIM raw socket bound to a chosen interface, sending to the
// well-known ALL-PIM-ROUTERS group (spec.md §4.4). The RawConner interface
// and the bind/send sequence are adapted from the teacher's
// internal/pim/server.go and internal/pim/cmd/send/send.go.
package transport

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// IPPROTOPIM is the IP protocol number PIM runs directly over.
const IPPROTOPIM = 103

// AllPIMRouters is the PIM-SM well-known destination group,
// 224.0.0.13/ALL-PIM-ROUTERS.
var AllPIMRouters = net.IPv4(224, 0, 0, 13)

// RawConner is the subset of *ipv4.RawConn this package needs; it exists
// so tests can substitute a fake without opening a real raw socket.
type RawConner interface {
	WriteTo(h *ipv4.Header, b []byte, cm *ipv4.ControlMessage) error
	SetMulticastInterface(ifi *net.Interface) error
	SetMulticastLoopback(bool) error
	Close() error
}

// Conn is an open PIM raw-socket transport bound to one interface.
type Conn struct {
	conn RawConner
	ifi  *net.Interface
}

// Open creates an IPPROTO_PIM raw socket and binds its egress to ifaceName.
// On any failure it returns a descriptive error without partially
// succeeding (spec.md §4.4).
func Open(ifaceName string) (*Conn, error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("transport: interface %q: %w", ifaceName, err)
	}

	pc, err := net.ListenPacket("ip4:103", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("transport: opening IPPROTO_PIM raw socket: %w", err)
	}
	raw, err := ipv4.NewRawConn(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("transport: wrapping raw socket: %w", err)
	}
	if err := raw.SetMulticastInterface(ifi); err != nil {
		raw.Close()
		return nil, fmt.Errorf("transport: binding egress interface %q: %w", ifaceName, err)
	}
	// pimc never joins AllPIMRouters locally, so a looped-back copy of its
	// own Hello/Join-Prune traffic would only ever be misread as a second
	// neighbor; disable loopback unconditionally (spec.md §4.4). The
	// per-packet TTL of 1 is the PIM-SM wire requirement for all
	// link-local PIM messages, unicast or multicast.
	if err := raw.SetMulticastLoopback(false); err != nil {
		raw.Close()
		return nil, fmt.Errorf("transport: disabling multicast loopback: %w", err)
	}

	return &Conn{conn: raw, ifi: ifi}, nil
}

// wrap adapts an already-constructed RawConner (used by tests) into a Conn
// bound to ifi.
func wrap(conn RawConner, ifi *net.Interface) *Conn {
	return &Conn{conn: conn, ifi: ifi}
}

// Send transmits one complete PIM datagram payload to ALL-PIM-ROUTERS. It
// is a single sendto-equivalent: partial success is not possible at this
// layer (spec.md §4.4).
func (c *Conn) Send(payload []byte) error {
	iph := &ipv4.Header{
		Version:  4,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(payload),
		TTL:      1,
		Protocol: IPPROTOPIM,
		Dst:      AllPIMRouters,
	}
	cm := &ipv4.ControlMessage{IfIndex: c.ifi.Index}
	if err := c.conn.WriteTo(iph, payload, cm); err != nil {
		return fmt.Errorf("transport: sendto %s via %s: %w", AllPIMRouters, c.ifi.Name, err)
	}
	return nil
}

// Close releases the underlying socket. It is safe to call exactly once.
func (c *Conn) Close() error {
	return c.conn.Close()
}
