// Package syncmachine implements the sync-id reconstruction automaton: a
// SYNC packet followed by six UART packets encodes a 40-bit sync identifier
// (byte 0 is a 0x55 lead-in, bytes 1-5 are the id, little-endian). Machine
// tracks this one packet at a time as a stream is read; Scan performs the
// same reconstruction as a batch pass over a random-access packet range,
// used to recover the last/first sync record in a file without a full
// streaming pass.
package syncmachine

import (
	"fmt"

	"github.com/keisuke0821/elenc/internal/diag"
	"github.com/keisuke0821/elenc/internal/packet"
)

// Info is one reconstructed sync record. Stamp and ID are -1 when no sync
// has ever been observed for the stream they annotate.
type Info struct {
	Stamp  int64
	ID     int64
	Offset int32
}

// Carry is the state needed to resume sync reconstruction across a file
// boundary: the record in effect (or the in-progress accumulator, when
// Count < 6) and how many of its six UART bytes have been consumed.
type Carry struct {
	Rec   Info
	Count int
}

// NoCarry is the carry state for a stream that starts with no sync history.
var NoCarry = Carry{Rec: Info{Stamp: -1, ID: -1, Offset: 0}, Count: 6}

// Machine reconstructs sync records from a packet stream, one packet at a
// time. It tracks an in-progress accumulator (the SYNC/UART sequence
// currently being consumed) separately from published, the last record
// completed, which is what callers annotate DATA packets with.
type Machine struct {
	curStamp  int64
	curID     int64
	curOffset int32
	count     int // UARTs consumed since the last SYNC; 6 means ready for a new one
	skip      bool

	published Info
}

// New starts a Machine from carry-over state. Pass NoCarry for a stream
// with no prior sync history.
func New(c Carry) *Machine {
	m := &Machine{curStamp: c.Rec.Stamp, curID: c.Rec.ID, curOffset: c.Rec.Offset, count: c.Count}
	if c.Count == 6 {
		m.published = c.Rec
	} else {
		m.published = Info{Stamp: -1, ID: -1, Offset: 0}
	}
	return m
}

// Published returns the most recently completed sync record, used to
// annotate DATA packets as they stream by.
func (m *Machine) Published() Info { return m.published }

// Carry returns the state needed to resume this machine in a following
// file: the in-progress accumulator and how many UARTs it has consumed.
// Skip is true once the current sequence has completed or was abandoned
// because its UART header byte was not 0x55, and false otherwise (a
// sequence still consuming UARTs, or a machine that has seen no SYNC) —
// callers use it to choose between looking up the next file's first sync
// record (clean boundary) or defragging a split UART sequence.
func (m *Machine) Carry() (c Carry, skip bool) {
	return Carry{Rec: Info{Stamp: m.curStamp, ID: m.curID, Offset: m.curOffset}, Count: m.count}, m.skip
}

// Push feeds one non-DATA packet (SYNC or UART) into the machine. It
// reports anomalies to sink and returns the newly completed record (ok
// true) when this packet finished a six-UART run.
func (m *Machine) Push(stamp uint32, data int32, kind packet.Kind, packetIdx int64, sink diag.Sink) (rec Info, ok bool) {
	if sink == nil {
		sink = diag.DiscardSink{}
	}
	switch kind {
	case packet.KindSync:
		if m.count != 6 {
			sink.Observe(diag.Diagnostic{Packet: packetIdx, Code: diag.CodeSyncDrop,
				Message: fmt.Sprintf("UART fragmentation: stamp=%d id=%d count=%d", m.curStamp, m.curID, m.count)})
			if m.count > 0 && !m.skip {
				sink.Observe(diag.Diagnostic{Packet: packetIdx, Code: diag.CodeSyncDrop,
					Message: "attempting recovery, dropping this SYNC"})
				return Info{}, false
			}
		}
		m.curStamp = int64(stamp)
		m.count = 0
		m.curID = 0
		m.curOffset = data
		m.skip = false
		return Info{}, false

	case packet.KindUart:
		switch {
		case m.count == 0:
			if data != 0x55 {
				sink.Observe(diag.Diagnostic{Packet: packetIdx, Code: diag.CodeUartFragment,
					Message: fmt.Sprintf("UART header broken: got %d, want 0x55", data)})
				m.skip = true
			}
		case m.count < 6:
			m.curID += int64(data) << uint(8*(m.count-1))
		default:
			sink.Observe(diag.Diagnostic{Packet: packetIdx, Code: diag.CodeUartTooLong,
				Message: fmt.Sprintf("UART too long; sync id %d may be invalid", m.curID)})
		}
		m.count++

		if m.count == 6 && !m.skip {
			m.skip = true
			m.published = Info{Stamp: m.curStamp, ID: m.curID, Offset: m.curOffset}
			return m.published, true
		}
		return Info{}, false

	default:
		sink.Observe(diag.Diagnostic{Packet: packetIdx, Code: diag.CodeSyncDrop, Message: "Push called with a DATA packet"})
		return Info{}, false
	}
}

// ResumeID overwrites the in-progress accumulator's id, publishing it as a
// completed record. Used after Defrag reconstructs an id split across a
// file boundary — the stamp/offset are unchanged since they were already
// set by the SYNC packet that began the sequence.
func (m *Machine) ResumeID(id int64) Info {
	m.curID = id
	m.published = Info{Stamp: m.curStamp, ID: m.curID, Offset: m.curOffset}
	return m.published
}

// UartByte is one (stamp, data) pair of a UART packet, used by Defrag.
type UartByte struct {
	Stamp uint32
	Data  int32
}

// Defrag recovers a sync id split across a file boundary: syncID is the
// partial id accumulated in the prior file, uartCount how many of the six
// UART bytes it already consumed. frag holds the UART packets that precede
// the first SYNC packet in the following file.
func Defrag(syncID int64, uartCount int, frag []UartByte) (int64, error) {
	if len(frag)+uartCount != 6 {
		return -1, fmt.Errorf("syncmachine: fragment length mismatch: have %d + %d, want 6", len(frag), uartCount)
	}
	for i, b := range frag {
		if uartCount+i == 0 {
			if b.Data != 0x55 {
				return -1, fmt.Errorf("syncmachine: UART header wrong: %d", b.Data)
			}
			continue
		}
		syncID += int64(b.Data) << uint(8*(i+uartCount-1))
	}
	return syncID, nil
}
