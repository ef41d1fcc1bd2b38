package tcp

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/keisuke0821/elenc/internal/packet"
	"github.com/keisuke0821/elenc/internal/pathcatalog"
)

// fakeUpstream listens once and streams an endless sequence of DATA
// packets to whatever connects, until the listener is closed.
func fakeUpstream(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var stamp uint32
		for {
			b := packet.Encode(stamp, int32(stamp), packet.KindData)
			if _, err := conn.Write(b[:]); err != nil {
				return
			}
			stamp++
		}
	}()
	return ln.Addr().String(), func() { _ = ln.Close() }
}

func TestRunRotatesFiles(t *testing.T) {
	addr, stop := fakeUpstream(t)
	defer stop()

	base := t.TempDir()
	cat := pathcatalog.New(base)
	s, err := New(Options{
		Addr:           addr,
		Cat:            cat,
		PacketsPerFile: 10,
		Version:        2020011601,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Cancel as soon as the first complete file shows up, before a second
	// rotation can start: NewPath has one-second filename resolution, so
	// letting this fast fake upstream rotate freely would collide.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wantSize := int64(packet.HeaderLength) + 10*int64(packet.Length)
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	var first string
	for time.Now().Before(deadline) {
		if p, err := cat.Latest(); err == nil {
			if info, serr := os.Stat(p); serr == nil && info.Size() == wantSize {
				first = p
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
	_ = s.Close()
	if first == "" {
		t.Fatalf("no completed file observed before deadline")
	}

	f, err := os.Open(first)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	hdrBuf := make([]byte, packet.HeaderLength)
	if _, err := f.Read(hdrBuf); err != nil {
		t.Fatalf("read header: %v", err)
	}
	hdr, err := packet.DecodeHeader(hdrBuf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.Version != 2020011601 {
		t.Fatalf("header version = %d, want 2020011601", hdr.Version)
	}
}

func TestResetCommandsRequireConnection(t *testing.T) {
	base := t.TempDir()
	cat := pathcatalog.New(base)
	s, err := New(Options{Addr: "127.0.0.1:1", Cat: cat})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.ResetEnable(); err == nil {
		t.Fatal("expected error sending command before Connect")
	}
}
