package mclst

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// BeaconPeriod is the fixed 1pps cadence of the beacon sender (spec.md
// §4.6, "Send path").
const BeaconPeriod = time.Second

// senderConn abstracts the UDP connection the beacon Sender writes to,
// adapted from internal/multicast/heartbeat.go's PacketConner so the send
// loop can be driven by a fake socket under test.
type senderConn interface {
	WriteTo(b []byte, cm *ipv4.ControlMessage, dst net.Addr) (int, error)
	SetMulticastTTL(ttl int) error
	SetMulticastInterface(intf *net.Interface) error
	Close() error
}

// Sender emits one mclst beacon datagram per second to a single multicast
// group:port until stopped or Count is exhausted. Its send-then-tick
// shape is adapted from internal/multicast/heartbeat.go's HeartbeatSender,
// generalized from "fan out to several groups" to "one flow, sequenced
// beacon payloads, optional message, count limit."
type Sender struct {
	cfg     Config
	message []byte

	seq  uint64
	done chan struct{}
	wg   *sync.WaitGroup

	mu      sync.Mutex
	sendErr error
	OnSent  func(seq uint64, ts time.Time)
	OnErr   func(error)
}

// NewSender builds a Sender for cfg; message is the optional data_len
// prefixed payload carried in every beacon (may be nil).
func NewSender(cfg Config, message []byte) *Sender {
	// done is buffered so Stop never blocks even if the send loop already
	// exited on its own after reaching Count.
	return &Sender{cfg: cfg, message: message, done: make(chan struct{}, 1)}
}

// Start opens a UDP socket bound to the configured interface and begins
// sending beacons at BeaconPeriod.
func (s *Sender) Start() error {
	pc, err := net.ListenPacket("udp4", fmt.Sprintf("%s:0", s.cfg.IntfAddr))
	if err != nil {
		return fmt.Errorf("mclst: listen for send on %s: %w", s.cfg.IntfAddr, err)
	}
	p := ipv4.NewPacketConn(pc)
	return s.startWithConn(p)
}

func (s *Sender) startWithConn(p senderConn) error {
	if err := p.SetMulticastTTL(s.cfg.TTL); err != nil {
		p.Close()
		return fmt.Errorf("mclst: set multicast TTL: %w", err)
	}
	if err := p.SetMulticastInterface(s.cfg.Interface); err != nil {
		p.Close()
		return fmt.Errorf("mclst: set multicast interface: %w", err)
	}

	dst := &net.UDPAddr{IP: s.cfg.Group.ToNetIP(), Port: int(s.cfg.DPort)}

	s.wg = &sync.WaitGroup{}
	s.wg.Add(1)
	go func() {
		defer p.Close()
		defer s.wg.Done()

		s.sendOne(p, dst)
		if s.limitReached() {
			return
		}

		ticker := time.NewTicker(BeaconPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sendOne(p, dst)
				if s.limitReached() {
					return
				}
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (s *Sender) sendOne(p senderConn, dst *net.UDPAddr) {
	now := time.Now()
	b := Beacon{Seq: s.seq, TimeNs: uint64(now.UnixNano()), Data: s.message}.Encode()
	if _, err := p.WriteTo(b, nil, dst); err != nil {
		s.setErr(err)
		if s.OnErr != nil {
			s.OnErr(err)
		}
		return
	}
	if s.OnSent != nil {
		s.OnSent(s.seq, now)
	}
	s.seq++
}

func (s *Sender) limitReached() bool {
	return s.cfg.Count != 0 && s.seq >= s.cfg.Count
}

func (s *Sender) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr == nil {
		s.sendErr = err
	}
}

// Err returns the first send error encountered, if any.
func (s *Sender) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendErr
}

// Stop signals the send loop to exit and waits for it to finish. It
// returns the number of beacons successfully sent.
func (s *Sender) Stop() uint64 {
	if s.wg != nil {
		s.done <- struct{}{}
		s.wg.Wait()
		s.wg = nil
	}
	return s.seq
}
