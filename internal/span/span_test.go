package span

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keisuke0821/elenc/internal/packet"
	"github.com/keisuke0821/elenc/internal/pathcatalog"
)

// writeFile writes a header followed by a leading DATA sample, a complete
// SYNC+6*UART sequence encoding id, then the given trailing DATA stamps.
func writeFile(t *testing.T, path string, created time.Time, id int64, stamps []uint32) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	hdr, err := packet.EncodeHeader(2020011601, created, packet.DefaultHeaderText)
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

	write := func(b [packet.Length]byte) {
		if _, err := f.Write(b[:]); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}

	firstStamp := stamps[0]
	write(packet.Encode(firstStamp, 0, packet.KindSync))
	write(packet.Encode(firstStamp, 0x55, packet.KindUart))
	for i := 0; i < 5; i++ {
		b := (id >> uint(8*i)) & 0xFF
		write(packet.Encode(firstStamp, int32(b), packet.KindUart))
	}
	for _, s := range stamps {
		write(packet.Encode(s, int32(s)*2, packet.KindData))
	}
}

func TestAssembleAcrossTwoFiles(t *testing.T) {
	base := t.TempDir()
	p1 := filepath.Join(base, "2024", "01", "15", "el_2024-0115-000000+0000.dat")
	p2 := filepath.Join(base, "2024", "01", "15", "el_2024-0115-010000+0000.dat")

	t0 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	writeFile(t, p1, t0, 0x0A, []uint32{0, 1, 2, 3, 4})
	writeFile(t, p2, t0.Add(time.Hour), 0x0B, []uint32{5, 6, 7, 8, 9})

	cat := pathcatalog.New(base)
	rows, err := Assemble(cat, t0.Add(30*time.Minute), t0.Add(90*time.Minute), Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("got %d rows, want 10 (both files span the range)", len(rows))
	}
	if rows[0].Stamp != 0 || rows[len(rows)-1].Stamp != 9 {
		t.Fatalf("stamps = %d..%d, want 0..9", rows[0].Stamp, rows[len(rows)-1].Stamp)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].UnixTime <= rows[i-1].UnixTime {
			t.Fatalf("UnixTime not increasing at row %d: %v <= %v", i, rows[i].UnixTime, rows[i-1].UnixTime)
		}
	}
	last := rows[len(rows)-1]
	if last.SyncID != 0x0B {
		t.Fatalf("last row SyncID = %d, want 0x0B", last.SyncID)
	}
}

func TestAssembleRejectsEmptyRange(t *testing.T) {
	base := t.TempDir()
	cat := pathcatalog.New(base)
	now := time.Now()
	if _, err := Assemble(cat, now, now, Options{}); err == nil {
		t.Fatal("expected error for start == end")
	}
}
