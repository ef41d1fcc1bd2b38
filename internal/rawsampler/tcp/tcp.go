// Package tcp implements the raw sampler that relays packets from the
// upstream encoder interface board over a plain TCP connection, writing
// them straight to rotating log files.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/logging"
	"github.com/keisuke0821/elenc/internal/metrics"
	"github.com/keisuke0821/elenc/internal/packet"
	"github.com/keisuke0821/elenc/internal/pathcatalog"
)

const (
	transportLabel = "tcp"

	defaultPacketsPerFile = 1_000_000
	defaultRecvPackets    = 128
	defaultDialTimeout    = 5 * time.Second

	rxBackoffMin = 100 * time.Millisecond
	rxBackoffMax = 5 * time.Second
)

// out-of-band commands recognized by the upstream interface board.
const (
	CmdResetEnable  = "e#reset_enable"
	CmdResetDisable = "e#reset_disable"
)

// Options configures a Sampler.
type Options struct {
	// Addr is the upstream host:port to dial.
	Addr string
	// Cat is where rotated log files are created.
	Cat *pathcatalog.Catalog
	// PacketsPerFile bounds how many packets go into one file before it
	// rotates. Defaults to 1,000,000.
	PacketsPerFile uint64
	// Version is written into each file's header.
	Version   uint32
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Sampler owns one upstream TCP connection and the rotating file writer
// fed from it.
type Sampler struct {
	opts   Options
	conn   net.Conn
	logger *slog.Logger
}

// New validates opts and returns a Sampler, not yet connected.
func New(opts Options) (*Sampler, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("%w: empty upstream address", elerrors.ErrTransport)
	}
	if opts.Cat == nil {
		return nil, fmt.Errorf("%w: nil path catalog", elerrors.ErrTransport)
	}
	if opts.PacketsPerFile == 0 {
		opts.PacketsPerFile = defaultPacketsPerFile
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &Sampler{opts: opts, logger: logger}, nil
}

// Connect dials the upstream board. Run calls it automatically if not
// already connected.
func (s *Sampler) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: s.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.opts.Addr)
	if err != nil {
		metrics.IncError(metrics.ErrTransport)
		return fmt.Errorf("%w: dial %s: %v", elerrors.ErrTransport, s.opts.Addr, err)
	}
	s.conn = conn
	s.logger.Info("rawsampler_connected", "addr", s.opts.Addr)
	return nil
}

// Close closes the upstream connection, if open.
func (s *Sampler) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// ResetEnable and ResetDisable send the out-of-band commands the upstream
// board recognizes to toggle its own reset behavior; they do not interrupt
// the packet stream.
func (s *Sampler) ResetEnable() error  { return s.sendCommand(CmdResetEnable) }
func (s *Sampler) ResetDisable() error { return s.sendCommand(CmdResetDisable) }

func (s *Sampler) sendCommand(cmd string) error {
	if s.conn == nil {
		return fmt.Errorf("%w: not connected", elerrors.ErrTransport)
	}
	if _, err := s.conn.Write([]byte(cmd)); err != nil {
		metrics.IncError(metrics.ErrTransport)
		return fmt.Errorf("%w: send %s: %v", elerrors.ErrTransport, cmd, err)
	}
	return nil
}

// Run connects if necessary and relays packets into rotating files
// forever, until ctx is cancelled. Read errors are retried with
// exponential backoff; the connection is never silently abandoned.
func (s *Sampler) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		path, err := s.opts.Cat.NewPath(time.Now().UTC())
		if errors.Is(err, pathcatalog.ErrNotFound) {
			// Filenames have one-second resolution: a rotation within the
			// same second collides, so wait briefly and try again.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("rawsampler: new file: %w", err)
		}
		if err := s.writeFile(ctx, path); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		metrics.IncRawSamplerRotation()
	}
}

// writeFile writes a fresh header followed by opts.PacketsPerFile packets
// relayed from the upstream connection.
func (s *Sampler) writeFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rawsampler: create %s: %w", path, err)
	}
	defer f.Close()

	hdr, err := packet.EncodeHeader(s.opts.Version, time.Now(), packet.DefaultHeaderText)
	if err != nil {
		return fmt.Errorf("rawsampler: encode header: %w", err)
	}
	if _, err := f.Write(hdr[:]); err != nil {
		return fmt.Errorf("rawsampler: write header: %w", err)
	}

	rest := int64(s.opts.PacketsPerFile) * packet.Length
	buf := make([]byte, defaultRecvPackets*packet.Length)
	backoff := rxBackoffMin
	for rest > 0 {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		want := int64(len(buf))
		if rest < want {
			want = rest
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, err := s.conn.Read(buf[:want])
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("rawsampler: write body: %w", werr)
			}
			metrics.AddRawSamplerBytes(transportLabel, n)
			rest -= int64(n)
			backoff = rxBackoffMin
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: upstream closed connection", elerrors.ErrTransport)
			}
			metrics.IncError(metrics.ErrTransport)
			s.logger.Warn("rawsampler_read_error", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return context.Canceled
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
		}
	}
	return nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
