package filereader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keisuke0821/elenc/internal/packet"
)

func writeLogFile(t *testing.T, path string, n int) {
	t.Helper()
	hdr, err := packet.EncodeHeader(2020011601, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), packet.DefaultHeaderText)
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
	for i := 0; i < n; i++ {
		b := packet.Encode(uint32(i), int32(i*10), packet.KindData)
		if _, err := f.Write(b[:]); err != nil {
			t.Fatalf("write packet %d: %v", i, err)
		}
	}
}

func TestRawReadHeaderAndLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "el_2024-0115-000000+0000.dat")
	writeLogFile(t, path, 10)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Header().Version != 2020011601 {
		t.Fatalf("Version = %d, want 2020011601", r.Header().Version)
	}
	n, err := r.LengthInPackets()
	if err != nil {
		t.Fatalf("LengthInPackets: %v", err)
	}
	if n != 10 {
		t.Fatalf("LengthInPackets = %d, want 10", n)
	}
}

func TestRawReadPacketSequence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "el_2024-0115-000000+0000.dat")
	writeLogFile(t, path, 5)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for i := 0; i < 5; i++ {
		pos, err := r.TellPacket()
		if err != nil {
			t.Fatalf("TellPacket: %v", err)
		}
		if pos != uint64(i) {
			t.Fatalf("TellPacket = %d, want %d", pos, i)
		}
		b, err := r.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		stamp, data, kind, err := packet.Decode(b)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if stamp != uint32(i) || data != int32(i*10) || kind != packet.KindData {
			t.Fatalf("packet %d = (%d, %d, %s)", i, stamp, data, kind)
		}
	}
	if _, err := r.ReadPacket(); err == nil {
		t.Fatal("expected ErrEOF past end of file")
	}
}

func TestRawSeekToPacket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "el_2024-0115-000000+0000.dat")
	writeLogFile(t, path, 20)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if err := r.SeekToPacket(15); err != nil {
		t.Fatalf("SeekToPacket: %v", err)
	}
	b, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	stamp, _, _, err := packet.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if stamp != 15 {
		t.Fatalf("stamp = %d, want 15", stamp)
	}

	// Seek backward and re-read.
	if err := r.SeekToPacket(3); err != nil {
		t.Fatalf("SeekToPacket backward: %v", err)
	}
	b, err = r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	stamp, _, _, err = packet.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if stamp != 3 {
		t.Fatalf("stamp = %d, want 3", stamp)
	}
}
