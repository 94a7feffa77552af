// Package pim implements the wire codec for the subset of PIM-SM v2
// (RFC 7761) messages this toolkit emits and parses: the common header, the
// Hello message, and the Join/Prune message, as gopacket layers.
package pim

import (
	"encoding/binary"
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var PIMMessageType = gopacket.RegisterLayerType(1666, gopacket.LayerTypeMetadata{Name: "PIM", Decoder: gopacket.DecodeFunc(decodePim)})
var HelloMessageType = gopacket.RegisterLayerType(1667, gopacket.LayerTypeMetadata{Name: "PIMHello", Decoder: gopacket.DecodeFunc(decodePimHelloMessage)})
var JoinPruneMessageType = gopacket.RegisterLayerType(1668, gopacket.LayerTypeMetadata{Name: "PIMJoinPrune", Decoder: gopacket.DecodeFunc(decodePimJoinPruneMessage)})

func (p *PIMMessage) LayerType() gopacket.LayerType       { return PIMMessageType }
func (h *HelloMessage) LayerType() gopacket.LayerType     { return HelloMessageType }
func (j *JoinPruneMessage) LayerType() gopacket.LayerType { return JoinPruneMessageType }

// Message Type                          Destination
// ---------------------------------------------------------------------
// 0 = Hello                             Multicast to ALL-PIM-ROUTERS
// 1 = Register                          Unicast to RP
// 2 = Register-Stop                     Unicast to source of Register
// 										 packet
// 3 = Join/Prune                        Multicast to ALL-PIM-ROUTERS
// 4 = Bootstrap                         Multicast to ALL-PIM-ROUTERS
// 5 = Assert                            Multicast to ALL-PIM-ROUTERS
// 6 = Graft (used in PIM-DM only)       Unicast to RPF'(S)
// 7 = Graft-Ack (used in PIM-DM only)   Unicast to source of Graft
// 										 packet
// 8 = Candidate-RP-Advertisement        Unicast to Domain's BSR

func decodePim(data []byte, p gopacket.PacketBuilder) error {
	if len(data) < 4 {
		return errors.New("PIM header is too short")
	}
	msg := &PIMMessage{}
	msg.Header.Version = data[0] >> 4
	msg.Header.Type = MessageType(data[0] & 0x0F)
	msg.Header.Reserved = data[1]
	msg.Header.Checksum = binary.BigEndian.Uint16(data[2:4])
	msg.Contents = data[0:4]
	msg.Payload = data[4:]
	p.AddLayer(msg)

	switch msg.Header.Type {
	case Hello:
		return p.NextDecoder(gopacket.DecodeFunc(decodePimHelloMessage))
	case JoinPrune:
		return p.NextDecoder(gopacket.DecodeFunc(decodePimJoinPruneMessage))
	default:
		return nil
	}
}

func decodeEncodedUnicastAddr(data []byte) (net.IP, int, error) {
	if len(data) < 2 {
		return nil, 0, errors.New("Encoded Unicast address is too short")
	}
	addrFamily := data[0]
	switch addrFamily {
	case 1: // IPv4
		if len(data[2:]) < 4 {
			return nil, 0, errors.New("IPv4 address is too short")
		}
		return net.IP(data[2:6]), 6, nil
	case 2: // IPv6
		if len(data[2:]) < 16 {
			return nil, 0, errors.New("IPv6 address is too short")
		}
		return net.IP(data[2:18]), 18, nil
	default:
		return nil, 0, errors.New("Unsupported address family")
	}
}

func decodePimHelloMessage(data []byte, p gopacket.PacketBuilder) error {
	hello := &HelloMessage{BaseLayer: layers.BaseLayer{Contents: data}}
	for len(data) > 0 {
		if len(data) < 4 {
			return errors.New("PIM Hello option is too short")
		}
		optType := OptionType(binary.BigEndian.Uint16(data[0:2]))
		optLen := binary.BigEndian.Uint16(data[2:4])
		if len(data[4:]) < int(optLen) {
			return errors.New("PIM Hello option value is too short")
		}
		value := data[4 : 4+optLen]

		switch optType {
		case OptionTypeHoldtime:
			if len(value) < 2 {
				return errors.New("Holdtime option is too short")
			}
			hello.Holdtime = binary.BigEndian.Uint16(value)
		case OptionTypeLANPruneDelay:
			if len(value) < 4 {
				return errors.New("LAN Prune Delay option is too short")
			}
			hello.PropDelay = binary.BigEndian.Uint16(value[0:2])
			hello.OverrideeInterval = binary.BigEndian.Uint16(value[2:4])
		case OptionTypeDRPriority:
			if len(value) < 4 {
				return errors.New("DR Priority option is too short")
			}
			hello.DRPriority = binary.BigEndian.Uint32(value)
		case OptionTypeGenerationID:
			if len(value) < 4 {
				return errors.New("Generation ID option is too short")
			}
			hello.GenerationID = binary.BigEndian.Uint32(value)
		case OptionTypeStateRefresh:
			if len(value) < 2 {
				return errors.New("State Refresh option is too short")
			}
			hello.StateRefreshInterval = value[1]
		case OptionTypeAddressList:
			hello.SecondaryAddress = make([]net.IP, 0)
			rest := value
			for len(rest) > 0 {
				addr, n, err := decodeEncodedUnicastAddr(rest)
				if err != nil {
					return err
				}
				hello.SecondaryAddress = append(hello.SecondaryAddress, addr)
				rest = rest[n:]
			}
		}
		data = data[4+optLen:]
	}

	p.AddLayer(hello)
	return nil
}

/*
PIM Common Header

	 0                   1                   2                   3
	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|PIM Ver| Type  |   Reserved    |           Checksum            |
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/
type MessageType uint8

const (
	Hello                   MessageType = 0x00
	Register                MessageType = 0x01
	RegisterStop            MessageType = 0x02
	JoinPrune               MessageType = 0x03
	Bootstrap               MessageType = 0x04
	Assert                  MessageType = 0x05
	Graft                   MessageType = 0x06
	GraftAck                MessageType = 0x07
	CadidateRPAdvertisement MessageType = 0x08
)

type PIMHeader struct {
	Version  uint8
	Type     MessageType
	Reserved uint8
	Checksum uint16
}

type PIMMessage struct {
	layers.BaseLayer
	Header PIMHeader
}

// SerializeTo writes the 4-byte PIM common header. The caller is
// responsible for patching the checksum field once the full payload has
// been assembled; see Checksum.
func (p *PIMMessage) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(4)
	if err != nil {
		return err
	}
	bytes[0] = (p.Header.Version << 4) | (byte(p.Header.Type) & 0x0F)
	bytes[1] = p.Header.Reserved
	binary.BigEndian.PutUint16(bytes[2:4], p.Header.Checksum)
	p.Contents = bytes
	return nil
}

/* PIM Hello Message
    0                   1                   2                   3
    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |PIM Ver| Type  |   Reserved    |           Checksum            |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |          OptionType           |         OptionLength          |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                          OptionValue                          |
   |                              ...                              |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                               .                               |
   |                               .                               |
   |                               .                               |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |          OptionType           |         OptionLength          |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                          OptionValue                          |
   |                              ...                              |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

type HelloMessage struct {
	layers.BaseLayer
	Holdtime             uint16
	PropDelay            uint16
	OverrideeInterval    uint16
	DRPriority           uint32
	GenerationID         uint32
	SecondaryAddress     []net.IP
	StateRefreshInterval uint8
}

// SerializeTo writes the Holdtime, GenerationID, and DR-Priority Hello
// options, in that order, which is the set this toolkit emits (spec.md
// §4.1). Optional/advisory options (LAN Prune Delay, State Refresh,
// Address List) the decoder understands are not re-emitted.
func (h *HelloMessage) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	const optionsLen = (4 + 2) + (4 + 4) + (4 + 4) // holdtime + generationID + DR-priority
	bytes, err := b.PrependBytes(optionsLen)
	if err != nil {
		return err
	}
	off := 0
	binary.BigEndian.PutUint16(bytes[off:], uint16(OptionTypeHoldtime))
	binary.BigEndian.PutUint16(bytes[off+2:], 2)
	binary.BigEndian.PutUint16(bytes[off+4:], h.Holdtime)
	off += 6

	binary.BigEndian.PutUint16(bytes[off:], uint16(OptionTypeGenerationID))
	binary.BigEndian.PutUint16(bytes[off+2:], 4)
	binary.BigEndian.PutUint32(bytes[off+4:], h.GenerationID)
	off += 8

	binary.BigEndian.PutUint16(bytes[off:], uint16(OptionTypeDRPriority))
	binary.BigEndian.PutUint16(bytes[off+2:], 4)
	binary.BigEndian.PutUint32(bytes[off+4:], h.DRPriority)
	off += 8

	h.Contents = bytes
	return nil
}

type OptionType uint16

const (
	OptionTypeHoldtime      OptionType = 0x0001
	OptionTypeLANPruneDelay OptionType = 0x0002
	OptionTypeDRPriority    OptionType = 0x0013
	OptionTypeGenerationID  OptionType = 0x0014
	OptionTypeStateRefresh  OptionType = 0x0015
	OptionTypeAddressList   OptionType = 0x0024
)

// Source address flag bits within the Encoded-Source-Address flags byte
// (spec.md §4.1): bit0 = Rendezvous-Point Tree, bit1 = WildCard, bit2 =
// Sparse.
const (
	RPTreeBit   uint8 = 0x1
	WildCardBit uint8 = 0x2
	SparseBit   uint8 = 0x4
)
