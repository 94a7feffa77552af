package mclst

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/pimclib/pimc-toolkit/internal/ipaddr"
)

// PacketStatus classifies a received datagram, matching the provider
// contract in original_source/apps/mclst/ReceiverBase.hpp.
type PacketStatus int

const (
	// Filtered packets are not destined for the configured group/port and
	// must not reset the keep-alive Timer.
	Filtered PacketStatus = iota
	// AcceptedNoShow packets are destined for the configured group but
	// carry a malformed UDP length; the Timer resets but nothing prints
	// and FlowStats is not updated.
	AcceptedNoShow
	// AcceptedShow packets are accepted, dissected, and update FlowStats.
	AcceptedShow
)

// Config parameterizes a Receiver or Sender.
type Config struct {
	Group      ipaddr.Address
	Source     ipaddr.Address // zero means any-source (*,G)
	DPort      uint16         // 0 selects the IP-raw wildcard-port variant
	Interface  *net.Interface
	IntfAddr   ipaddr.Address
	TimeoutSec int
	Count      uint64 // 0 means unlimited
	TTL        int
}

// udpConner abstracts golang.org/x/net/ipv4.PacketConn for testing.
type udpConner interface {
	SetControlMessage(cf ipv4.ControlFlags, on bool) error
	JoinGroup(ifi *net.Interface, group net.Addr) error
	JoinSourceSpecificGroup(ifi *net.Interface, group, source net.Addr) error
	SetReadDeadline(t time.Time) error
	ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error)
	Close() error
}

// Receiver runs mclst's non-blocking receive loop: it polls a socket with a
// bounded timeout, dissects accepted datagrams, and maintains FlowStats.
// Adapted from original_source/apps/mclst/ReceiverBase.hpp, whose CRTP
// "provider" template collapses here to the udpConner/rawConner interfaces
// selected by whether DPort is wildcarded.
type Receiver struct {
	cfg   Config
	Stats *RxStats

	timer    *Timer
	received uint64

	// OnPacket, if set, is invoked for every AcceptedShow packet, in
	// addition to the FlowStats update. OnTimeout is invoked whenever the
	// Timer reports an elapsed window.
	OnPacket  func(PacketInfo)
	OnTimeout func(time.Time)
	OnWarning func(string)
}

// NewReceiver builds a Receiver for cfg, with its Timer seeded at now.
func NewReceiver(cfg Config, now time.Time) *Receiver {
	return &Receiver{cfg: cfg, Stats: NewRxStats(), timer: NewTimer(time.Duration(cfg.TimeoutSec)*time.Second, now)}
}

// Run drives the receive loop until stopped reports true between polls, or
// the configured packet count is reached. It always leaves the socket
// closed on return.
func (r *Receiver) Run(stopped func() bool) error {
	if r.cfg.DPort == 0 {
		return r.runRaw(stopped)
	}
	return r.runUDP(stopped)
}

func (r *Receiver) runUDP(stopped func() bool) error {
	pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", r.cfg.DPort))
	if err != nil {
		return fmt.Errorf("mclst: listen udp4:%d: %w", r.cfg.DPort, err)
	}
	p := ipv4.NewPacketConn(pc)
	defer p.Close()
	return r.pollUDP(p, stopped)
}

// pollUDP is the testable core of runUDP: it takes a udpConner so tests can
// substitute a fake socket instead of binding a real one.
func (r *Receiver) pollUDP(p udpConner, stopped func() bool) error {
	if err := p.SetControlMessage(ipv4.FlagTTL|ipv4.FlagInterface, true); err != nil {
		return fmt.Errorf("mclst: enable ancillary data: %w", err)
	}

	groupAddr := &net.UDPAddr{IP: r.cfg.Group.ToNetIP()}
	if r.cfg.Source.IsDefault() {
		if err := p.JoinGroup(r.cfg.Interface, groupAddr); err != nil {
			return fmt.Errorf("mclst: join (*, %s) on %s: %w", r.cfg.Group, r.cfg.Interface.Name, err)
		}
	} else {
		sourceAddr := &net.UDPAddr{IP: r.cfg.Source.ToNetIP()}
		if err := p.JoinSourceSpecificGroup(r.cfg.Interface, groupAddr, sourceAddr); err != nil {
			return fmt.Errorf("mclst: join (%s, %s) on %s: %w", r.cfg.Source, r.cfg.Group, r.cfg.Interface.Name, err)
		}
	}

	buf := make([]byte, BufferSize)
	for !stopped() {
		if err := p.SetReadDeadline(time.Now().Add(time.Duration(r.cfg.TimeoutSec) * time.Second)); err != nil {
			return fmt.Errorf("mclst: set read deadline: %w", err)
		}
		n, cm, addr, err := p.ReadFrom(buf)
		now := time.Now()
		r.timer.Save(now)

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				r.checkTimeout(now)
				continue
			}
			return fmt.Errorf("mclst: read: %w", err)
		}

		pi := PacketInfo{Timestamp: now, Group: r.cfg.Group, DPort: r.cfg.DPort, TTL: -1}
		if udpAddr, ok := addr.(*net.UDPAddr); ok {
			pi.Source, _ = ipaddr.FromNetIP(udpAddr.IP)
			pi.SPort = uint16(udpAddr.Port)
		}
		if cm != nil {
			if cm.TTL > 0 {
				pi.TTL = int16(cm.TTL)
			}
			pi.IfIndex = cm.IfIndex
		}
		pi.Payload = append([]byte(nil), buf[:n]...)

		r.accept(pi)
		if r.count() {
			return nil
		}
	}
	return nil
}

// rawConner abstracts a raw IPv4/UDP socket for testing the wildcard-port
// receiver variant.
type rawConner interface {
	SetReadDeadline(t time.Time) error
	ReadFrom(b []byte) (int, net.Addr, error)
	Close() error
}

func (r *Receiver) runRaw(stopped func() bool) error {
	pc, err := net.ListenPacket("ip4:17", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("mclst: listen ip4:17 (raw UDP): %w", err)
	}
	defer pc.Close()
	return r.pollRaw(pc, stopped)
}

// pollRaw is the testable core of runRaw: it takes a rawConner so tests can
// substitute a fake socket instead of binding a real one.
func (r *Receiver) pollRaw(pc rawConner, stopped func() bool) error {
	buf := make([]byte, BufferSize)
	for !stopped() {
		if err := pc.SetReadDeadline(time.Now().Add(time.Duration(r.cfg.TimeoutSec) * time.Second)); err != nil {
			return fmt.Errorf("mclst: set read deadline: %w", err)
		}
		n, _, err := pc.ReadFrom(buf)
		now := time.Now()
		r.timer.Save(now)

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				r.checkTimeout(now)
				continue
			}
			return fmt.Errorf("mclst: read: %w", err)
		}

		pi, status := r.dissectRaw(buf[:n], now)
		switch status {
		case Filtered:
			continue
		case AcceptedNoShow:
			r.timer.Reset()
			continue
		case AcceptedShow:
			r.timer.Reset()
			r.Stats.Add(pi.Source, pi.SPort, pi.DPort, len(pi.Payload))
			if r.OnPacket != nil {
				r.OnPacket(pi)
			}
			if r.count() {
				return nil
			}
		}
	}
	return nil
}

// dissectRaw parses payload as an IPv4 datagram carrying UDP, rejecting
// anything not destined for the configured multicast group (spec.md §4.6,
// "IP-raw variant").
func (r *Receiver) dissectRaw(payload []byte, now time.Time) (PacketInfo, PacketStatus) {
	hdr, err := ipv4.ParseHeader(payload)
	if err != nil || len(payload) < hdr.Len+8 {
		return PacketInfo{}, Filtered
	}
	dst, err := ipaddr.FromNetIP(hdr.Dst)
	if err != nil || dst != r.cfg.Group {
		return PacketInfo{}, Filtered
	}

	udp := payload[hdr.Len:]
	sport := binary.BigEndian.Uint16(udp[0:2])
	dport := binary.BigEndian.Uint16(udp[2:4])
	udpLen := binary.BigEndian.Uint16(udp[4:6])
	if int(udpLen) < 8 || int(udpLen) > len(udp) {
		return PacketInfo{}, AcceptedNoShow
	}
	payloadBytes := udp[8:udpLen]
	src, _ := ipaddr.FromNetIP(hdr.Src)

	pi := PacketInfo{
		Timestamp: now,
		Source:    src,
		SPort:     sport,
		Group:     r.cfg.Group,
		DPort:     dport,
		TTL:       int16(hdr.TTL),
		Payload:   append([]byte(nil), payloadBytes...),
	}
	r.dissectBeacon(&pi)
	return pi, AcceptedShow
}

func (r *Receiver) accept(pi PacketInfo) {
	r.timer.Reset()
	r.dissectBeacon(&pi)
	r.Stats.Add(pi.Source, pi.SPort, pi.DPort, len(pi.Payload))
	if r.OnPacket != nil {
		r.OnPacket(pi)
	}
}

func (r *Receiver) dissectBeacon(pi *PacketInfo) {
	b, ok, err := DissectBeacon(pi.Payload)
	if err != nil {
		if r.OnWarning != nil {
			r.OnWarning(err.Error())
		}
		return
	}
	if ok {
		pi.Beacon = b
		pi.IsBeacon = true
	}
}

func (r *Receiver) checkTimeout(now time.Time) {
	if r.timer.Timeout() {
		if r.OnTimeout != nil {
			r.OnTimeout(r.timer.Timestamp())
		}
		r.timer.Reset()
	}
}

func (r *Receiver) count() bool {
	if r.cfg.Count == 0 {
		return false
	}
	r.received++
	return r.received >= r.cfg.Count
}
