// Package pktbuild materializes complete, checksummed PIM datagrams from
// the plan builder's output, following the construct*/sendMsg pattern the
// teacher's pim.PIMServer used for a single hardcoded Hello/Join message
// (spec.md §4.3).
package pktbuild

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/pimclib/pimc-toolkit/internal/pim"
	"github.com/pimclib/pimc-toolkit/internal/planner"
)

var serializeOpts = gopacket.SerializeOptions{}

// finalize serializes the PIM header on top of an already-serialized body,
// then patches in the checksum computed over the whole datagram.
func finalize(buf gopacket.SerializeBuffer, msgType pim.MessageType) ([]byte, error) {
	header := &pim.PIMMessage{Header: pim.PIMHeader{Version: 2, Type: msgType, Checksum: 0}}
	if err := header.SerializeTo(buf, serializeOpts); err != nil {
		return nil, fmt.Errorf("pktbuild: serializing PIM header: %w", err)
	}
	b := buf.Bytes()
	binary.BigEndian.PutUint16(b[2:4], pim.Checksum(b))
	return b, nil
}

// HelloPacket builds a complete Hello datagram with the given holdtime,
// DR-Priority, and Generation ID (spec.md §4.3).
func HelloPacket(holdtime uint16, drPriority, generationID uint32) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	hello := &pim.HelloMessage{Holdtime: holdtime, DRPriority: drPriority, GenerationID: generationID}
	if err := hello.SerializeTo(buf, serializeOpts); err != nil {
		return nil, fmt.Errorf("pktbuild: serializing Hello body: %w", err)
	}
	return finalize(buf, pim.Hello)
}

// UpdatePacket builds a complete Join/Prune datagram from a planner.Update.
func UpdatePacket(u planner.Update) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	jp := &pim.JoinPruneMessage{
		UpstreamNeighborAddress: u.Upstream.ToNetIP(),
		NumGroups:               uint8(len(u.Groups)),
		Holdtime:                u.Holdtime,
		Groups:                  make([]pim.Group, len(u.Groups)),
	}
	for i, g := range u.Groups {
		jp.Groups[i] = pim.Group{
			GroupID:               i,
			AddressFamily:         1,
			NumJoinedSources:      uint16(len(g.Joined)),
			NumPrunedSources:      uint16(len(g.Pruned)),
			MaskLength:            32,
			MulticastGroupAddress: g.Group.ToNetIP(),
			Joins:                 sourceAddresses(g.Joined),
			Prunes:                sourceAddresses(g.Pruned),
		}
	}
	if err := jp.SerializeTo(buf, serializeOpts); err != nil {
		return nil, fmt.Errorf("pktbuild: serializing Join/Prune body: %w", err)
	}
	return finalize(buf, pim.JoinPrune)
}

// UpdatePackets maps UpdatePacket over a slice of Updates, stopping and
// returning the first error encountered.
func UpdatePackets(updates []planner.Update) ([][]byte, error) {
	pkts := make([][]byte, 0, len(updates))
	for i, u := range updates {
		pkt, err := UpdatePacket(u)
		if err != nil {
			return nil, fmt.Errorf("pktbuild: update %d: %w", i, err)
		}
		pkts = append(pkts, pkt)
	}
	return pkts, nil
}

func sourceAddresses(entries []planner.SourceEntry) []pim.SourceAddress {
	out := make([]pim.SourceAddress, len(entries))
	for i, e := range entries {
		out[i] = pim.SourceAddress{
			AddressFamily: 1,
			EncodingType:  0,
			Flags:         flagsByte(e.Flags),
			MaskLength:    32,
			Address:       e.Addr.ToNetIP(),
		}
	}
	return out
}

func flagsByte(f planner.SourceFlags) uint8 {
	var b uint8
	if f.RPT {
		b |= pim.RPTreeBit
	}
	if f.WC {
		b |= pim.WildCardBit
	}
	if f.S {
		b |= pim.SparseBit
	}
	return b
}

// GoodbyeHello builds a Hello datagram with holdtime=0, the withdrawal
// signal sent on shutdown (spec.md §4.5).
func GoodbyeHello(drPriority, generationID uint32) ([]byte, error) {
	return HelloPacket(0, drPriority, generationID)
}
