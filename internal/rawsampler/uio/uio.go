// Package uio implements the raw sampler that reads encoder samples
// directly off the FPGA's AXI FIFO through a Linux UIO device, bypassing
// any network transport entirely.
package uio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/keisuke0821/elenc/internal/elerrors"
)

// leapOffset is the TAI-UTC offset in whole seconds baked into the TSU
// hardware clock as of this logger's deployment.
const leapOffset = 37

// mmapSize is the window mapped over the device; the FIFO status words
// live at offset 0 and the current data word at offset 16.
const mmapSize = 0x100

// Sample is one 94-bit TSU-stamped FIFO entry.
type Sample struct {
	State uint8 // top 2 bits of the 96-bit FIFO word
	Sec   uint64
	Nsec  uint32
}

// TAI returns the sample time as seconds since the TAI epoch.
func (s Sample) TAI() float64 { return float64(s.Sec) + float64(s.Nsec)/1e9 }

// UTC returns the sample time as seconds since the Unix (UTC) epoch.
func (s Sample) UTC() float64 { return s.TAI() - leapOffset }

// decodeSample unpacks the three little-endian 32-bit words read from the
// FIFO data register into a Sample. Layout of the 96-bit concatenation
// w0 | w1<<32 | w2<<64: low 94 bits are [sec 48][nsec 30][subnsec 16], and
// the top 2 bits are the FIFO entry's state flags.
func decodeSample(w0, w1, w2 uint32) Sample {
	lo := uint64(w0) | uint64(w1)<<32
	hi := uint64(w2)
	nsec := uint32((lo >> 16) & 0x3FFFFFFF)
	sec := (lo >> 46) | ((hi & 0x3FFFFFFF) << 18)
	state := uint8((hi >> 30) & 0x3)
	return Sample{State: state, Sec: sec, Nsec: nsec}
}

// Reader owns the mmap'd UIO device and the advisory lock guarding
// exclusive access to it.
type Reader struct {
	lockFile *os.File
	dev      *os.File
	mem      []byte
}

// Open acquires the lock at lockPath, opens devPath read-only and maps its
// first mmapSize bytes. Only one Reader may hold lockPath at a time.
func Open(devPath, lockPath string) (*Reader, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("uio: create lock dir: %w", err)
	}
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("uio: open lock file: %w", err)
	}
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lf.Close()
		return nil, fmt.Errorf("%w: %s", elerrors.ErrLocked, lockPath)
	}

	dev, err := os.OpenFile(devPath, os.O_RDONLY|unix.O_SYNC, 0)
	if err != nil {
		_ = unix.Flock(int(lf.Fd()), unix.LOCK_UN)
		lf.Close()
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", elerrors.ErrDeviceMissing, devPath)
		}
		return nil, fmt.Errorf("uio: open device %s: %w", devPath, err)
	}
	mem, err := unix.Mmap(int(dev.Fd()), 0, mmapSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		dev.Close()
		_ = unix.Flock(int(lf.Fd()), unix.LOCK_UN)
		lf.Close()
		return nil, fmt.Errorf("uio: mmap %s: %w", devPath, err)
	}
	return &Reader{lockFile: lf, dev: dev, mem: mem}, nil
}

// Close unmaps the device, releases the lock and closes both files.
func (r *Reader) Close() error {
	err := unix.Munmap(r.mem)
	_ = r.dev.Close()
	_ = unix.Flock(int(r.lockFile.Fd()), unix.LOCK_UN)
	_ = r.lockFile.Close()
	return err
}

// fifoInfo returns the FIFO's read length, write length and residue, read
// fresh from the mapped status words on every call.
func (r *Reader) fifoInfo() (rLen, wLen, residue uint32) {
	rLen = binary.LittleEndian.Uint32(r.mem[0:4])
	wLen = binary.LittleEndian.Uint32(r.mem[4:8])
	residue = binary.LittleEndian.Uint32(r.mem[8:12])
	return
}

// readSample reads the current FIFO data word, unchanged by fifoInfo.
func (r *Reader) readSample() Sample {
	w0 := binary.LittleEndian.Uint32(r.mem[16:20])
	w1 := binary.LittleEndian.Uint32(r.mem[20:24])
	w2 := binary.LittleEndian.Uint32(r.mem[24:28])
	return decodeSample(w0, w1, w2)
}

// Drain pulls every sample currently queued in the FPGA FIFO, stopping
// once both the read length and residue report empty, mirroring the
// original polling loop's exit condition.
func (r *Reader) Drain() []Sample {
	var out []Sample
	for {
		rLen, _, residue := r.fifoInfo()
		if rLen == 0 && residue == 0 {
			return out
		}
		out = append(out, r.readSample())
	}
}

// Fill runs Drain in a loop, sending each batch to out, until stop is
// closed. It sleeps pollInterval between empty drains, matching the
// original reader's 100ms idle poll.
func (r *Reader) Fill(out chan<- Sample, stop <-chan struct{}, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		batch := r.Drain()
		for _, s := range batch {
			select {
			case out <- s:
			case <-stop:
				return
			}
		}
		if len(batch) == 0 {
			select {
			case <-stop:
				return
			case <-time.After(pollInterval):
			}
		}
	}
}
