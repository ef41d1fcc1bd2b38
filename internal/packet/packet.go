// Package packet implements the wire format of the elevation encoder log
// files: the fixed 12-byte packet and the 256-byte file header that
// precedes the packet stream.
package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/keisuke0821/elenc/internal/elerrors"
)

// Length is the size in bytes of a single encoded packet.
const Length = 12

// Kind classifies a decoded packet by its trailing footer bytes.
type Kind uint8

const (
	// KindData marks an encoder sample: timestamp + signed encoder count.
	KindData Kind = iota
	// KindSync marks the start of a synchronization sequence: timestamp + offset.
	KindSync
	// KindUart marks a single synchronization payload byte.
	KindUart
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindSync:
		return "SYNC"
	case KindUart:
		return "UART"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

var header = [2]byte{0x07, 0x12}

var footers = map[[2]byte]Kind{
	{0x7A, 0xDA}: KindData,
	{0x0C, 0x57}: KindSync,
	{0x48, 0x20}: KindUart,
}

var footerBytes = map[Kind][2]byte{
	KindData: {0x7A, 0xDA},
	KindSync: {0x0C, 0x57},
	KindUart: {0x48, 0x20},
}

// Decode validates and parses a single 12-byte packet.
//
// Layout (little-endian): [2B header][4B timestamp][4B signed payload][2B footer].
func Decode(b [Length]byte) (stamp uint32, data int32, kind Kind, err error) {
	if b[0] != header[0] || b[1] != header[1] {
		return 0, 0, 0, fmt.Errorf("%w: %#02x %#02x", elerrors.ErrHeader, b[0], b[1])
	}
	footer := [2]byte{b[10], b[11]}
	kind, ok := footers[footer]
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %#02x %#02x", elerrors.ErrFooter, b[10], b[11])
	}
	stamp = binary.LittleEndian.Uint32(b[2:6])
	data = int32(binary.LittleEndian.Uint32(b[6:10]))
	return stamp, data, kind, nil
}

// Encode packs a packet back into its 12-byte wire form. Used by the raw
// sampler and by round-trip tests; kind must be one of the Kind constants.
func Encode(stamp uint32, data int32, kind Kind) [Length]byte {
	var b [Length]byte
	b[0], b[1] = header[0], header[1]
	binary.LittleEndian.PutUint32(b[2:6], stamp)
	binary.LittleEndian.PutUint32(b[6:10], uint32(data))
	foot := footerBytes[kind]
	b[10], b[11] = foot[0], foot[1]
	return b
}
