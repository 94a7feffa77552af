package mclst

import (
	"encoding/binary"
	"fmt"
)

// BeaconMagic identifies an mclst beacon payload, matching
// original_source/apps/mclst/MclstBeacon.hpp's MclstMagic.
const BeaconMagic uint64 = 0xA522A4B5BB1C9250

// beaconHeaderLen is magic(8) + seq(8) + timeNs(8) + dataLen(2).
const beaconHeaderLen = 8 + 8 + 8 + 2

// Beacon is the payload mclst's sender emits and its receiver dissects.
type Beacon struct {
	Seq    uint64
	TimeNs uint64
	Data   []byte
}

// Encode renders b as a complete beacon payload.
func (b Beacon) Encode() []byte {
	buf := make([]byte, beaconHeaderLen+len(b.Data))
	binary.BigEndian.PutUint64(buf[0:8], BeaconMagic)
	binary.BigEndian.PutUint64(buf[8:16], b.Seq)
	binary.BigEndian.PutUint64(buf[16:24], b.TimeNs)
	binary.BigEndian.PutUint16(buf[24:26], uint16(len(b.Data)))
	copy(buf[26:], b.Data)
	return buf
}

// DissectBeacon inspects payload for a beacon header. It returns
// (Beacon{}, false, nil) when the magic does not match — payload is simply
// not a beacon, not an error. It returns a non-nil error when the magic
// matches but data_len claims more bytes than remain, which the caller
// should surface as a warning and otherwise ignore (spec.md §4.6 step 4).
func DissectBeacon(payload []byte) (Beacon, bool, error) {
	if len(payload) < 8 {
		return Beacon{}, false, nil
	}
	if binary.BigEndian.Uint64(payload[0:8]) != BeaconMagic {
		return Beacon{}, false, nil
	}
	if len(payload) < beaconHeaderLen {
		return Beacon{}, true, fmt.Errorf("mclst: beacon header truncated: got %d bytes, need %d", len(payload), beaconHeaderLen)
	}
	seq := binary.BigEndian.Uint64(payload[8:16])
	timeNs := binary.BigEndian.Uint64(payload[16:24])
	dataLen := binary.BigEndian.Uint16(payload[24:26])
	if int(dataLen) > len(payload)-beaconHeaderLen {
		return Beacon{}, true, fmt.Errorf("mclst: beacon data_len %d exceeds remaining %d bytes", dataLen, len(payload)-beaconHeaderLen)
	}
	return Beacon{Seq: seq, TimeNs: timeNs, Data: payload[beaconHeaderLen : beaconHeaderLen+int(dataLen)]}, true, nil
}
