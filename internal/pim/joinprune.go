package pim

import (
	"encoding/binary"
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

/*
PIM Join/Prune Message

	 0                   1                   2                   3
	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|        Upstream Neighbor Address (Encoded-Unicast format)     |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|  Reserved     | Num groups    |          Holdtime             |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|         Multicast Group Address 1 (Encoded-Group format)      |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|   Number of Joined Sources    |   Number of Pruned Sources    |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|        Joined Source Address 1 (Encoded-Source format)        |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|                             .                                 |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|        Pruned Source Address 1 (Encoded-Source format)        |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|                             .                                 |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

// SourceAddress is an Encoded-Source-Address: a joined or pruned source
// within a Group's record.
type SourceAddress struct {
	AddressFamily uint8
	EncodingType  uint8
	Flags         uint8
	MaskLength    uint8
	Address       net.IP
}

// Group is one group record within a Join/Prune message body.
type Group struct {
	// GroupID is this record's position within the enclosing message; it
	// is not part of the wire format.
	GroupID               int
	AddressFamily         uint8
	NumJoinedSources      uint16
	NumPrunedSources      uint16
	MaskLength            uint8
	MulticastGroupAddress net.IP
	Joins                 []SourceAddress
	Prunes                []SourceAddress
}

// JoinPruneMessage is the body of a PIM Join/Prune message targeting a
// single upstream neighbor.
type JoinPruneMessage struct {
	layers.BaseLayer
	UpstreamNeighborAddress net.IP
	NumGroups               uint8
	Reserved                uint8
	Holdtime                uint16
	Groups                  []Group
}

func decodeSourceAddress(data []byte) (SourceAddress, error) {
	if len(data) < 8 {
		return SourceAddress{}, errors.New("Encoded Source address is too short")
	}
	return SourceAddress{
		AddressFamily: data[0],
		EncodingType:  data[1],
		Flags:         data[2],
		MaskLength:    data[3],
		Address:       net.IP(data[4:8]),
	}, nil
}

func decodePimJoinPruneMessage(data []byte, p gopacket.PacketBuilder) error {
	if len(data) < 10 {
		return errors.New("PIM Join/Prune message is too short")
	}
	upstream, n, err := decodeEncodedUnicastAddr(data)
	if err != nil {
		return err
	}
	off := n
	reserved := data[off]
	numGroups := data[off+1]
	holdtime := binary.BigEndian.Uint16(data[off+2 : off+4])
	off += 4

	groups := make([]Group, 0, numGroups)
	for g := 0; g < int(numGroups); g++ {
		if len(data[off:]) < 8 {
			return errors.New("PIM Join/Prune group record is too short")
		}
		family := data[off]
		maskLen := data[off+3]
		groupAddr := net.IP(data[off+4 : off+8])
		off += 8

		if len(data[off:]) < 4 {
			return errors.New("PIM Join/Prune group record is too short")
		}
		numJoined := binary.BigEndian.Uint16(data[off : off+2])
		numPruned := binary.BigEndian.Uint16(data[off+2 : off+4])
		off += 4

		joins := make([]SourceAddress, 0, numJoined)
		for i := 0; i < int(numJoined); i++ {
			src, err := decodeSourceAddress(data[off:])
			if err != nil {
				return err
			}
			joins = append(joins, src)
			off += 8
		}

		prunes := make([]SourceAddress, 0, numPruned)
		for i := 0; i < int(numPruned); i++ {
			src, err := decodeSourceAddress(data[off:])
			if err != nil {
				return err
			}
			prunes = append(prunes, src)
			off += 8
		}

		groups = append(groups, Group{
			GroupID:               g,
			AddressFamily:         family,
			NumJoinedSources:      numJoined,
			NumPrunedSources:      numPruned,
			MaskLength:            maskLen,
			MulticastGroupAddress: groupAddr,
			Joins:                 joins,
			Prunes:                prunes,
		})
	}

	jp := &JoinPruneMessage{
		BaseLayer:               layers.BaseLayer{Contents: data},
		UpstreamNeighborAddress: upstream,
		NumGroups:               numGroups,
		Reserved:                reserved,
		Holdtime:                holdtime,
		Groups:                  groups,
	}
	p.AddLayer(jp)
	return nil
}

// SerializeTo writes the full Join/Prune message body: the upstream
// neighbor address, the fixed header, and every group record in order.
func (jp *JoinPruneMessage) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	total := 6 + 1 + 1 + 2
	for _, g := range jp.Groups {
		total += 8 + 4 + 8*(len(g.Joins)+len(g.Prunes))
	}

	bytes, err := b.PrependBytes(total)
	if err != nil {
		return err
	}

	off := 0
	bytes[off] = 1 // IPv4
	bytes[off+1] = 0
	addr4 := jp.UpstreamNeighborAddress.To4()
	if addr4 == nil {
		return errors.New("UpstreamNeighborAddress is not an IPv4 address")
	}
	copy(bytes[off+2:off+6], addr4)
	off += 6

	bytes[off] = jp.Reserved
	off++
	bytes[off] = jp.NumGroups
	off++
	binary.BigEndian.PutUint16(bytes[off:off+2], jp.Holdtime)
	off += 2

	for _, g := range jp.Groups {
		bytes[off] = 1 // IPv4
		bytes[off+1] = 0
		bytes[off+2] = 0 // group flags, always zero for this toolkit
		bytes[off+3] = g.MaskLength
		grpAddr4 := g.MulticastGroupAddress.To4()
		if grpAddr4 == nil {
			return errors.New("MulticastGroupAddress is not an IPv4 address")
		}
		copy(bytes[off+4:off+8], grpAddr4)
		off += 8

		binary.BigEndian.PutUint16(bytes[off:off+2], uint16(len(g.Joins)))
		binary.BigEndian.PutUint16(bytes[off+2:off+4], uint16(len(g.Prunes)))
		off += 4

		for _, s := range g.Joins {
			off, err = serializeSourceAddress(bytes, off, s)
			if err != nil {
				return err
			}
		}
		for _, s := range g.Prunes {
			off, err = serializeSourceAddress(bytes, off, s)
			if err != nil {
				return err
			}
		}
	}

	jp.Contents = bytes
	return nil
}

func serializeSourceAddress(bytes []byte, off int, s SourceAddress) (int, error) {
	addr4 := s.Address.To4()
	if addr4 == nil {
		return off, errors.New("source address is not an IPv4 address")
	}
	bytes[off] = s.AddressFamily
	bytes[off+1] = s.EncodingType
	bytes[off+2] = s.Flags
	bytes[off+3] = s.MaskLength
	copy(bytes[off+4:off+8], addr4)
	return off + 8, nil
}
