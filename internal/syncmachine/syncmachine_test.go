package syncmachine

import (
	"testing"

	"github.com/keisuke0821/elenc/internal/diag"
	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/packet"
)

func TestMachinePushCompletesAfterSixUarts(t *testing.T) {
	m := New(NoCarry)
	coll := &diag.Collector{}

	if rec, ok := m.Push(100, 7, packet.KindSync, 0, coll); ok {
		t.Fatalf("SYNC packet should never itself complete a record, got %+v", rec)
	}
	uarts := []int32{0x55, 0x01, 0x02, 0x03, 0x04, 0x05}
	var last Info
	var gotOK bool
	for i, d := range uarts {
		last, gotOK = m.Push(101, d, packet.KindUart, int64(1+i), coll)
	}
	if !gotOK {
		t.Fatal("expected sync record to complete on sixth UART")
	}
	wantID := int64(0x01) | int64(0x02)<<8 | int64(0x03)<<16 | int64(0x04)<<24 | int64(0x05)<<32
	if last.ID != wantID || last.Stamp != 100 || last.Offset != 7 {
		t.Fatalf("got %+v, want {Stamp:100 ID:%d Offset:7}", last, wantID)
	}
	if len(coll.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics for a clean sequence, got %v", coll.Diagnostics)
	}
}

func TestMachinePushBadUartHeaderSkipsRecord(t *testing.T) {
	m := New(NoCarry)
	coll := &diag.Collector{}
	m.Push(1, 0, packet.KindSync, 0, coll)
	m.Push(1, 0x99, packet.KindUart, 1, coll) // bad header byte
	for i := 0; i < 5; i++ {
		if _, ok := m.Push(1, int32(i), packet.KindUart, int64(2+i), coll); ok {
			t.Fatal("a sequence with a bad header byte must not complete")
		}
	}
	if len(coll.Diagnostics) == 0 {
		t.Fatal("expected a diagnostic for the broken UART header")
	}
}

type fakeSource []struct {
	stamp uint32
	data  int32
	kind  packet.Kind
}

func (s fakeSource) PacketAt(i uint64) (uint32, int32, packet.Kind, error) {
	if i >= uint64(len(s)) {
		return 0, 0, 0, elerrors.ErrEOF
	}
	e := s[i]
	return e.stamp, e.data, e.kind, nil
}

func TestScanFindsCompleteSyncRecord(t *testing.T) {
	src := fakeSource{
		{1, 0, packet.KindSync},
		{1, 0x55, packet.KindUart},
		{1, 0x01, packet.KindUart},
		{1, 0x00, packet.KindUart},
		{1, 0x00, packet.KindUart},
		{1, 0x00, packet.KindUart},
		{1, 0x00, packet.KindUart},
		{2, 42, packet.KindData},
	}
	records, trailing, err := Scan(src, 0, uint64(len(src)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	// Only a SYNC resets the UART count, so it stays 6 after a completed
	// sequence.
	if trailing != 6 {
		t.Fatalf("trailing UART count = %d, want 6", trailing)
	}
	if len(records) != 1 || records[0].ID != 1 {
		t.Fatalf("records = %+v, want one record with ID=1", records)
	}
}

func TestDefragRecoversAcrossBoundary(t *testing.T) {
	// First file ended with header byte (0x55) and one data byte already consumed.
	frag := []UartByte{{Stamp: 2, Data: 0x02}, {Stamp: 2, Data: 0x00}, {Stamp: 2, Data: 0x00}, {Stamp: 2, Data: 0x00}}
	id, err := Defrag(0, 2, frag)
	if err != nil {
		t.Fatalf("Defrag: %v", err)
	}
	if id != 0x02<<8 {
		t.Fatalf("id = %d, want %d", id, 0x02<<8)
	}
}
