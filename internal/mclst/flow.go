// Package mclst implements the multicast listener/sender core: flow
// statistics, the poller-independent timeout timer, mclst beacon payload
// dissection, and the receive/send loops. Grounded on
// original_source/apps/mclst/{RxStats,Timer,MclstBeacon,PacketInfo,
// OutputHandler}.hpp and, for the send-loop shape, on the teacher's
// internal/multicast/heartbeat.go.
package mclst

import "github.com/pimclib/pimc-toolkit/internal/ipaddr"

// frameOverhead is the non-payload bytes attributed to every received UDP
// datagram when accounting flow byte counts: Ethernet MAC header
// (excluding any VLAN tag) + IPv4 header + UDP header + FCS.
const frameOverhead = 12 + 20 + 8 + 4

// FlowID packs a (source, sport, dport) triple into a 64-bit key, matching
// original_source/apps/mclst/RxStats.hpp's flowId.
type FlowID uint64

// NewFlowID builds a FlowID from its constituent parts.
func NewFlowID(source ipaddr.Address, sport, dport uint16) FlowID {
	return FlowID(uint64(dport)<<48 | uint64(source.Value())<<16 | uint64(sport))
}

// Source, SPort, and DPort extract the constituent parts of a FlowID.
func (f FlowID) Source() ipaddr.Address { return ipaddr.Address(uint32(f >> 16)) }
func (f FlowID) SPort() uint16          { return uint16(f) }
func (f FlowID) DPort() uint16          { return uint16(f >> 48) }

// FlowStats accumulates packet/byte counts for one flow.
type FlowStats struct {
	Pkts  uint64
	Bytes uint64
}

// Add records one received datagram carrying udpPayloadLen bytes of UDP
// payload, attributing the fixed per-packet framing overhead (spec.md §3,
// Testable Property 7: bytes == pkts·44 + Σ payload_sizes).
func (fs *FlowStats) Add(udpPayloadLen int) {
	fs.Pkts++
	fs.Bytes += uint64(frameOverhead + udpPayloadLen)
}

// AvgPacketSize returns bytes/pkts, or 0 for an empty flow.
func (fs FlowStats) AvgPacketSize() float64 {
	if fs.Pkts == 0 {
		return 0
	}
	return float64(fs.Bytes) / float64(fs.Pkts)
}

// RxStats tracks per-flow statistics in first-seen order, diverging
// deliberately from the original's std::set-backed (and therefore
// numerically sorted) flow index: spec.md §3 requires insertion-ordered
// display.
type RxStats struct {
	byID  map[FlowID]*FlowStats
	order []FlowID
}

// NewRxStats returns an empty RxStats.
func NewRxStats() *RxStats {
	return &RxStats{byID: make(map[FlowID]*FlowStats)}
}

// Add records one datagram of udpPayloadLen bytes for the flow
// (source, sport, dport), creating it on first sight.
func (r *RxStats) Add(source ipaddr.Address, sport, dport uint16, udpPayloadLen int) {
	id := NewFlowID(source, sport, dport)
	fs, ok := r.byID[id]
	if !ok {
		fs = &FlowStats{}
		r.byID[id] = fs
		r.order = append(r.order, id)
	}
	fs.Add(udpPayloadLen)
}

// Len reports the number of distinct flows observed.
func (r *RxStats) Len() int { return len(r.order) }

// Empty reports whether no flow has been observed yet.
func (r *RxStats) Empty() bool { return len(r.order) == 0 }

// FlowView is one row of RxStats.ForEach, naming the flow and its stats.
type FlowView struct {
	ID    FlowID
	Stats FlowStats
}

// ForEach visits every observed flow in first-seen order.
func (r *RxStats) ForEach(f func(FlowView)) {
	for _, id := range r.order {
		f(FlowView{ID: id, Stats: *r.byID[id]})
	}
}
