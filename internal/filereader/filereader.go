// Package filereader provides random-access, packet-indexed reading over a
// single log file, transparently decoding ".xz"-suffixed files. Every
// Reader owns exactly one open file handle.
package filereader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/therootcompany/xz"

	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/packet"
)

// Reader is a random-access view over one log file's packet region.
//
// Raw files support true random-access seeking. Compressed (.xz) files are
// inherently forward-only to decode, so a seek that moves backward (or a
// length query, which must read to EOF) reopens the underlying stream from
// the start and fast-forwards by discarding bytes — this mirrors the
// "seek-to-end for compressed" contract in the file format documentation,
// and keeps the single io.Reader-shaped path used for both cases.
type Reader struct {
	path       string
	compressed bool
	file       *os.File
	stream     io.Reader // current forward-read position in the decompressed byte stream
	bytePos    uint64    // bytes consumed from stream so far (compressed mode only)
	header     packet.Header
	length     uint64
	lengthSet  bool
}

// Open opens path (raw .dat or compressed .dat.xz) and parses its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{path: path, compressed: strings.HasSuffix(path, ".xz"), file: f}
	if err := r.initStream(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := r.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.file.Close() }

// Path returns the file path this Reader was opened from.
func (r *Reader) Path() string { return r.path }

// Header returns the parsed file header.
func (r *Reader) Header() packet.Header { return r.header }

func (r *Reader) initStream() error {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if r.compressed {
		s, err := xz.NewReader(r.file, xz.DefaultDictMax)
		if err != nil {
			return fmt.Errorf("filereader: open xz stream: %w", err)
		}
		r.stream = s
	} else {
		r.stream = r.file
	}
	r.bytePos = 0
	return nil
}

// readHeader reads the 4-byte ASCII length prefix, then the declared
// remainder, and parses the combined buffer.
func (r *Reader) readHeader() error {
	prefix := make([]byte, 4)
	if err := r.readForward(prefix); err != nil {
		return fmt.Errorf("%w: reading header length prefix: %v", elerrors.ErrHeader, err)
	}
	hlen, err := headerLength(prefix)
	if err != nil {
		return err
	}
	rest := make([]byte, hlen-4)
	if err := r.readForward(rest); err != nil {
		return fmt.Errorf("%w: reading header body: %v", elerrors.ErrHeader, err)
	}
	full := append(prefix, rest...)
	hdr, err := packet.DecodeHeader(full)
	if err != nil {
		return err
	}
	r.header = hdr
	return nil
}

func headerLength(prefix []byte) (int, error) {
	h, err := packet.DecodeHeader(append(append([]byte{}, prefix...), make([]byte, 12)...))
	if err != nil {
		return 0, err
	}
	return h.Length, nil
}

// readForward consumes len(buf) bytes from the current stream position,
// advancing bytePos for compressed streams (raw files track their own
// position via the OS file descriptor).
func (r *Reader) readForward(buf []byte) error {
	n, err := io.ReadFull(r.stream, buf)
	if r.compressed {
		r.bytePos += uint64(n)
	}
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return elerrors.ErrEOF
		}
		return err
	}
	return nil
}

// ReadPacket reads the next 12-byte packet, failing with ErrEOF when fewer
// than 12 bytes remain.
func (r *Reader) ReadPacket() ([packet.Length]byte, error) {
	var b [packet.Length]byte
	if err := r.readForward(b[:]); err != nil {
		return b, err
	}
	return b, nil
}

// TellPacket returns the current packet index (position within the packet
// region, not the raw byte offset).
func (r *Reader) TellPacket() (uint64, error) {
	if r.compressed {
		return (r.bytePos - uint64(r.header.Length)) / packet.Length, nil
	}
	pos, err := r.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return (uint64(pos) - uint64(r.header.Length)) / packet.Length, nil
}

// SeekToPacket moves the read position to packet index i.
func (r *Reader) SeekToPacket(i uint64) error {
	target := uint64(r.header.Length) + i*packet.Length
	if !r.compressed {
		_, err := r.file.Seek(int64(target), io.SeekStart)
		return err
	}
	if target < r.bytePos {
		if err := r.initStream(); err != nil {
			return err
		}
	}
	if target > r.bytePos {
		n, err := io.CopyN(io.Discard, r.stream, int64(target-r.bytePos))
		r.bytePos += uint64(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return elerrors.ErrEOF
			}
			return err
		}
	}
	return nil
}

// LengthInPackets returns the number of packets in the file's packet
// region: size-derived for raw files, computed by scanning to EOF (then
// restoring position) for compressed files. The result is cached.
func (r *Reader) LengthInPackets() (uint64, error) {
	if r.lengthSet {
		return r.length, nil
	}
	if !r.compressed {
		st, err := r.file.Stat()
		if err != nil {
			return 0, err
		}
		r.length = uint64(st.Size()-int64(r.header.Length)) / packet.Length
		r.lengthSet = true
		return r.length, nil
	}

	cur, err := r.TellPacket()
	if err != nil {
		return 0, err
	}
	if err := r.SeekToPacket(0); err != nil {
		return 0, err
	}
	n, err := io.Copy(io.Discard, r.stream)
	if err != nil {
		return 0, fmt.Errorf("filereader: scan to eof: %w", err)
	}
	r.bytePos += uint64(n)
	r.length = uint64(n) / packet.Length
	r.lengthSet = true
	if err := r.SeekToPacket(cur); err != nil {
		return 0, err
	}
	return r.length, nil
}
