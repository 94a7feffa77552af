package mclst

import (
	"time"

	"github.com/pimclib/pimc-toolkit/internal/ipaddr"
)

// BufferSize is large enough to hold the payload of the largest reassembled
// IPv4/UDP datagram mclst will receive.
const BufferSize = 67584

// PacketInfo describes one received datagram, adapted from
// original_source/apps/mclst/PacketInfo.hpp. TTL is -1 when the receiver
// could not obtain it.
type PacketInfo struct {
	Timestamp time.Time
	Source    ipaddr.Address
	SPort     uint16
	Group     ipaddr.Address
	DPort     uint16
	IfIndex   int
	TTL       int16

	Payload []byte

	Beacon   Beacon
	IsBeacon bool
}
