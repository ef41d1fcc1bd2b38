package packet

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keisuke0821/elenc/internal/elerrors"
)

// HeaderLength is the size of the file header written by this version of
// the format. Readers must still honor whatever length is declared in the
// header itself (see DecodeHeader), since older files may carry a
// different value.
const HeaderLength = 256

// Header is the parsed form of a log file's fixed-size preamble.
type Header struct {
	Length    int       // declared header length in bytes, from bytes 0..4
	Version   uint32    // file format version
	Created   time.Time // creation time, microsecond precision, UTC
	Text      string    // free-form description, right-padded with spaces in the wire form
}

// DecodeHeader parses a header buffer of at least 16 bytes. Callers first
// read the 4-byte ASCII length prefix to learn how much more to read before
// calling DecodeHeader on the full buffer.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < 16 {
		return Header{}, fmt.Errorf("%w: header too short (%d bytes)", elerrors.ErrHeader, len(b))
	}
	lenStr := strings.TrimSpace(string(b[0:4]))
	hlen, err := strconv.Atoi(lenStr)
	if err != nil {
		return Header{}, fmt.Errorf("%w: bad header length %q: %v", elerrors.ErrHeader, lenStr, err)
	}
	version := binary.LittleEndian.Uint32(b[4:8])
	sec := binary.LittleEndian.Uint32(b[8:12])
	usec := binary.LittleEndian.Uint32(b[12:16])
	created := time.Unix(int64(sec), int64(usec)*1000).UTC()
	text := string(b[16:])
	return Header{Length: hlen, Version: version, Created: created, Text: text}, nil
}

// EncodeHeader writes a HeaderLength-byte header for a freshly created log
// file, padding the free-form text with trailing spaces. It fails if text
// does not fit.
func EncodeHeader(version uint32, now time.Time, text string) ([HeaderLength]byte, error) {
	var out [HeaderLength]byte
	lenPrefix := []byte(fmt.Sprintf("%d\n", HeaderLength))
	if len(lenPrefix) != 4 {
		return out, fmt.Errorf("%w: header length prefix %q is not 4 bytes", elerrors.ErrHeader, lenPrefix)
	}
	copy(out[0:4], lenPrefix)
	binary.LittleEndian.PutUint32(out[4:8], version)
	utime := now.UTC()
	binary.LittleEndian.PutUint32(out[8:12], uint32(utime.Unix()))
	binary.LittleEndian.PutUint32(out[12:16], uint32(utime.Nanosecond()/1000))

	rest := out[16:]
	if len(text) > len(rest) {
		return out, fmt.Errorf("%w: header text too long (%d > %d)", elerrors.ErrHeader, len(text), len(rest))
	}
	copy(rest, text)
	for i := len(text); i < len(rest); i++ {
		rest[i] = ' '
	}
	return out, nil
}

// DefaultHeaderText documents the on-disk packet format, matching the
// description the original logger embedded in every file it created.
const DefaultHeaderText = `Elevation logger data
Packet format: [HEADER 2 bytes][BODY 4+4 bytes][FOOTER 2 bytes]
HEADER: 0x07 0x12
BODY + FOOTER:
	DATA: [timestamp] [enc value] 0x7A 0xDA
	SYNC: [timestamp] [offset] 0x0C 0x57
	UART: [timestamp] [UART data] 0x48 0x20
`
