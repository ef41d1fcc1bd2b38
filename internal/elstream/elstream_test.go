package elstream

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keisuke0821/elenc/internal/diag"
	"github.com/keisuke0821/elenc/internal/packet"
	"github.com/keisuke0821/elenc/internal/syncmachine"
)

// writeFile writes a header followed by the given (kind, stamp, data) packets.
func writeFile(t *testing.T, path string, pkts [][3]int64) {
	t.Helper()
	hdr, err := packet.EncodeHeader(2020011601, time.Now(), packet.DefaultHeaderText)
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(hdr[:]); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, p := range pkts {
		kind, stamp, data := packet.Kind(p[0]), uint32(p[1]), int32(p[2])
		b := packet.Encode(stamp, data, kind)
		if _, err := f.Write(b[:]); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
}

// syncSeq returns the 7-packet (SYNC + 6 UART) sequence encoding id at the
// given timestamp/offset.
func syncSeq(stamp uint32, offset int32, id int64) [][3]int64 {
	seq := [][3]int64{{int64(packet.KindSync), int64(stamp), int64(offset)}}
	b0 := int64(0x55)
	seq = append(seq, [3]int64{int64(packet.KindUart), int64(stamp), b0})
	for i := 0; i < 5; i++ {
		b := (id >> uint(8*i)) & 0xFF
		seq = append(seq, [3]int64{int64(packet.KindUart), int64(stamp), b})
	}
	return seq
}

func dataPkt(stamp uint32, data int32) [3]int64 {
	return [3]int64{int64(packet.KindData), int64(stamp), int64(data)}
}

func TestStreamAnnotatesDataAfterSyncCompletes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "el_2024-0115-000000+0000.dat")

	var pkts [][3]int64
	pkts = append(pkts, dataPkt(1, 100))
	pkts = append(pkts, syncSeq(2, 7, 0xABCDEF)...)
	for i := uint32(3); i < 200; i++ {
		pkts = append(pkts, dataPkt(i, int32(i)*10))
	}
	writeFile(t, path, pkts)

	st, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	var samples []Sample
	for {
		sm, err := st.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		samples = append(samples, sm)
	}

	if len(samples) != 198 {
		t.Fatalf("got %d samples, want 198", len(samples))
	}
	if samples[0].SyncID != -1 {
		t.Fatalf("sample before sync: SyncID = %d, want -1", samples[0].SyncID)
	}
	last := samples[len(samples)-1]
	if last.SyncID != 0xABCDEF || last.SyncOffset != 7 {
		t.Fatalf("last sample SyncID/Offset = %d/%d, want 0xABCDEF/7", last.SyncID, last.SyncOffset)
	}
}

func TestGetFirstAndLastSync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "el_2024-0115-000000+0000.dat")

	var pkts [][3]int64
	pkts = append(pkts, dataPkt(1, 1))
	pkts = append(pkts, syncSeq(2, 1, 0x0A)...)
	for i := uint32(3); i < 50; i++ {
		pkts = append(pkts, dataPkt(i, int32(i)))
	}
	pkts = append(pkts, syncSeq(50, 2, 0x0B)...)
	for i := uint32(51); i < 100; i++ {
		pkts = append(pkts, dataPkt(i, int32(i)))
	}
	writeFile(t, path, pkts)

	st, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	first, err := st.GetFirstSync()
	if err != nil {
		t.Fatalf("GetFirstSync: %v", err)
	}
	if first.ID != 0x0A {
		t.Fatalf("first sync id = %d, want 0x0A", first.ID)
	}

	// uartCount never resets to 0 after a completed flush — only a new SYNC
	// packet resets it — so by the time the scan reaches true EOF with no
	// further SYNC, it is still 6. GetLastSync treats that nonzero count as
	// "don't trust the very last record without accepting residue" and
	// falls back to the one before it.
	last, uartCount, err := st.GetLastSync(false)
	if err != nil {
		t.Fatalf("GetLastSync: %v", err)
	}
	if last.ID != 0x0A {
		t.Fatalf("last sync id (no residue) = %d, want 0x0A", last.ID)
	}
	if uartCount != 6 {
		t.Fatalf("uartCount = %d, want 6", uartCount)
	}

	lastResidue, _, err := st.GetLastSync(true)
	if err != nil {
		t.Fatalf("GetLastSync(accept residue): %v", err)
	}
	if lastResidue.ID != 0x0B {
		t.Fatalf("last sync id (accept residue) = %d, want 0x0B", lastResidue.ID)
	}
}

// TestSyncReplaceReportsWraparoundMismatch exercises the defensive branch in
// syncReplace that fires when the 32-bit tick counter wraps past 2^32-1
// inside the retroactive-annotation window: the buffered sample keeps its
// prior annotation, and a wraparound_mismatch Diagnostic is reported instead
// of silently dropping the anomaly.
func TestSyncReplaceReportsWraparoundMismatch(t *testing.T) {
	collector := &diag.Collector{}
	// The last two buffered samples' stamps have wrapped past 2^32-1 back
	// to small values; syncReplace's index arithmetic (which assumes a
	// stamp delta tracks a position delta) still reaches the last of them,
	// and must report the mismatch rather than misannotate or panic.
	s := &Stream{
		sink: collector,
		buffer: []Sample{
			{Stamp: 4294967290, Data: 1, SyncID: -1, SyncOffset: 0},
			{Stamp: 4294967292, Data: 2, SyncID: -1, SyncOffset: 0},
			{Stamp: 1, Data: 3, SyncID: -1, SyncOffset: 0},
			{Stamp: 3, Data: 4, SyncID: -1, SyncOffset: 0},
		},
		firstDataStamp: 4294967290,
	}

	rec := syncmachine.Info{Stamp: 4294967292, ID: 0x42, Offset: 7}
	if err := s.syncReplace(rec, 99); err != nil {
		t.Fatalf("syncReplace: %v", err)
	}

	if s.buffer[3].SyncID != -1 {
		t.Fatalf("wrapped sample SyncID = %d, want unchanged -1", s.buffer[3].SyncID)
	}

	var found bool
	for _, d := range collector.Diagnostics {
		if d.Code == diag.CodeWraparoundMismatch && d.Packet == 99 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a wraparound_mismatch diagnostic anchored at packet 99, got %+v", collector.Diagnostics)
	}
}
