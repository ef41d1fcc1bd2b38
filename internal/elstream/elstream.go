// Package elstream reconstructs a fully annotated sample stream from one
// log file: each DATA packet is paired with the sync id/offset in effect
// at the time it was recorded. Because a sync sequence (SYNC + six UART
// bytes) can complete up to BufferLength samples after the DATA packets it
// actually covers, completed samples are held in a bounded FIFO and
// retroactively rewritten in place when the sync that covers them
// finishes.
package elstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/keisuke0821/elenc/internal/diag"
	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/filereader"
	"github.com/keisuke0821/elenc/internal/metrics"
	"github.com/keisuke0821/elenc/internal/packet"
	"github.com/keisuke0821/elenc/internal/syncmachine"
)

// BufferLength is the retroactive-annotation window: a completed sample is
// not released until the buffer holds this many samples (it and
// BufferLength-1 newer ones behind it), giving a sync sequence that started
// before it time to complete.
const BufferLength = 128

// SeekLength is the initial chunk size GetLastSync/GetFirstSync scan before
// widening their search.
const SeekLength = 1000

// Sample is one fully annotated DATA packet.
type Sample struct {
	Stamp      uint32
	Data       int32
	SyncID     int64
	SyncOffset int32
}

// Postinfo describes how a Stream should resolve trailing, not-yet-synced
// buffered samples once its file is exhausted.
type Postinfo struct {
	// Explicit, when set, is used verbatim as the carry-out sync info
	// instead of consulting a following file.
	Explicit *syncmachine.Info

	// NextPath, when non-empty, names the following file in the catalog.
	// It is opened fresh (no preinfo) once EOF is reached, to look up
	// whichever of Defrag/GetFirstSync the boundary needs.
	NextPath string
}

// Options configures how a Stream starts and how it resolves its tail.
type Options struct {
	// Preinfo carries sync state forward from a previous file. Leave the
	// zero value (syncmachine.NoCarry) for a stream with no sync history.
	Preinfo syncmachine.Carry
	// Post, when non-nil, resolves trailing buffered samples against a
	// following file or an explicit record. When nil, samples still
	// buffered at EOF keep the annotations they already carry.
	Post *Postinfo
	// Sink receives anomaly reports. Defaults to discarding them.
	Sink diag.Sink
}

// Stream iterates the annotated samples of one log file.
type Stream struct {
	r       *filereader.Reader
	machine *syncmachine.Machine
	sink    diag.Sink
	post    *Postinfo

	buffer        []Sample
	finished      bool // file exhausted, tail-resolution has run
	firstDataSeen bool
	firstDataStamp uint32
}

// Open opens path and prepares it for streaming iteration via Next.
func Open(path string, opts Options) (*Stream, error) {
	r, err := filereader.Open(path)
	if err != nil {
		return nil, err
	}
	sink := opts.Sink
	if sink == nil {
		sink = diag.DiscardSink{}
	}
	preinfo := opts.Preinfo
	if preinfo == (syncmachine.Carry{}) {
		preinfo = syncmachine.NoCarry
	}
	return &Stream{
		r:       r,
		machine: syncmachine.New(preinfo),
		sink:    sink,
		post:    opts.Post,
	}, nil
}

// Close releases the underlying file.
func (s *Stream) Close() error { return s.r.Close() }

// Header returns the parsed file header.
func (s *Stream) Header() packet.Header { return s.r.Header() }

// Length returns the number of packets in the file (not the number of
// DATA samples, which is typically fewer).
func (s *Stream) Length() (uint64, error) { return s.r.LengthInPackets() }

// GetData decodes the packet at position i without touching the sync
// machine. It moves the read position that Next also uses, so calls
// interleaved with Next change which packet Next reads.
func (s *Stream) GetData(i uint64) (stamp uint32, data int32, kind packet.Kind, err error) {
	if err := s.r.SeekToPacket(i); err != nil {
		return 0, 0, 0, err
	}
	b, err := s.r.ReadPacket()
	if err != nil {
		return 0, 0, 0, err
	}
	return packet.Decode(b)
}

func (s *Stream) packetCursor() (uint64, error) { return s.r.TellPacket() }

// Next returns the next fully annotated sample, draining the retroactive
// buffer after the underlying file is exhausted. It returns io.EOF once
// every sample has been delivered.
func (s *Stream) Next() (Sample, error) {
	if s.finished {
		if len(s.buffer) == 0 {
			return Sample{}, io.EOF
		}
		sm := s.buffer[0]
		s.buffer = s.buffer[1:]
		metrics.IncSampleAnnotated()
		return sm, nil
	}

	idx, err := s.packetCursor()
	if err != nil {
		return Sample{}, err
	}
	b, err := s.r.ReadPacket()
	if err != nil {
		if errors.Is(err, elerrors.ErrEOF) {
			if err := s.resolveTail(); err != nil {
				return Sample{}, err
			}
			return s.Next()
		}
		return Sample{}, err
	}
	stamp, data, kind, err := packet.Decode(b)
	if err != nil {
		return Sample{}, err
	}
	metrics.IncPacketDecoded(kind.String())

	if kind == packet.KindData {
		pub := s.machine.Published()
		s.buffer = append(s.buffer, Sample{Stamp: stamp, Data: data, SyncID: pub.ID, SyncOffset: pub.Offset})
		if !s.firstDataSeen {
			s.firstDataSeen = true
			s.firstDataStamp = stamp
		}
	} else {
		if rec, ok := s.machine.Push(stamp, data, kind, int64(idx), s.sink); ok {
			metrics.IncSyncCompleted()
			if err := s.syncReplace(rec, int64(idx)); err != nil {
				return Sample{}, err
			}
		}
	}

	if len(s.buffer) < BufferLength {
		return s.Next()
	}
	sm := s.buffer[0]
	s.buffer = s.buffer[1:]
	metrics.IncSampleAnnotated()
	return sm, nil
}

// syncReplace rewrites every buffered sample recorded after rec.Stamp with
// rec's sync id/offset — the retroactive half of the annotation scheme.
// packetIdx anchors any wraparound diagnostic to the packet that triggered
// the replace; -1 means the replace was triggered by end-of-file handling.
func (s *Stream) syncReplace(rec syncmachine.Info, packetIdx int64) error {
	if len(s.buffer) == 0 {
		return nil
	}
	start := int64(s.buffer[0].Stamp)

	var index int
	if rec.Stamp < start {
		// The sync precedes the buffer head. If the stream's very first
		// DATA stamp is at or before the sync's stamp, samples this sync
		// covers were already released (flushed out ahead of a sync that
		// took this long to complete), which cannot be repaired. Otherwise
		// every buffered sample follows the sync and index 0 is the
		// correct start.
		if int64(s.firstDataStamp) <= rec.Stamp {
			return fmt.Errorf("%w: sync stamp %d precedes stream start %d", elerrors.ErrBufferTooShort, rec.Stamp, s.firstDataStamp)
		}
		index = 0
	} else {
		index = int(rec.Stamp-start) + 1
	}

	for i := index; i < len(s.buffer); i++ {
		if int64(s.buffer[i].Stamp) > rec.Stamp {
			s.buffer[i].SyncID = rec.ID
			s.buffer[i].SyncOffset = rec.Offset
		} else {
			// The tick counter wrapped past 2^32-1 inside the window;
			// leave this sample's annotation untouched, matching the
			// original reader's defensive skip.
			s.sink.Observe(diag.Diagnostic{
				Packet:  packetIdx,
				Code:    diag.CodeWraparoundMismatch,
				Message: fmt.Sprintf("buffer[%d] stamp %d not after sync stamp %d", i, s.buffer[i].Stamp, rec.Stamp),
			})
		}
	}
	return nil
}

// resolveTail runs once, when the underlying file is exhausted: it
// determines the sync record that should annotate whatever samples remain
// buffered, using Postinfo if configured. Without Postinfo, or when the
// following file holds no sync record, no record is applied and the
// buffered samples keep the annotations they already carry.
func (s *Stream) resolveTail() error {
	s.finished = true
	if len(s.buffer) == 0 {
		return nil
	}

	var rec syncmachine.Info
	switch {
	case s.post == nil:
		return nil
	case s.post.Explicit != nil:
		rec = *s.post.Explicit
	case s.post.NextPath != "":
		next, err := Open(s.post.NextPath, Options{Sink: s.sink})
		if err != nil {
			return err
		}
		defer next.Close()

		carry, skip := s.machine.Carry()
		if !skip {
			frag, err := next.uartFragment()
			if err != nil {
				return err
			}
			id, err := syncmachine.Defrag(carry.Rec.ID, carry.Count, frag)
			if err != nil {
				return err
			}
			rec = s.machine.ResumeID(id)
			metrics.IncSyncFragmentCarried()
		} else {
			first, err := next.GetFirstSync()
			if errors.Is(err, elerrors.ErrEOF) {
				return nil
			}
			if err != nil {
				return err
			}
			rec = first
		}
	default:
		return nil
	}
	return s.syncReplace(rec, -1)
}

// uartFragment scans this (the following) file from its start for the run
// of UART packets before its first SYNC or DATA packet — the continuation
// of a sequence that began in the previous file.
func (s *Stream) uartFragment() ([]syncmachine.UartByte, error) {
	var out []syncmachine.UartByte
	for i := uint64(0); ; i++ {
		stamp, data, kind, err := s.GetData(i)
		if err != nil {
			return nil, err
		}
		if kind != packet.KindUart {
			break
		}
		out = append(out, syncmachine.UartByte{Stamp: stamp, Data: data})
	}
	return out, nil
}
