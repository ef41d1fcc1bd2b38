// Command elenc-read-uio drains the FPGA AXI FIFO through the Linux UIO
// device exposed for axi_fifo_mm_s, logging the TSU-stamped samples it
// finds to rotating text files. Unlike the TCP interface-board protocol,
// these samples carry no DATA/SYNC/UART framing of their own: each line is
// one FIFO entry's timestamp and 2-bit state.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/logging"
	"github.com/keisuke0821/elenc/internal/metrics"
	"github.com/keisuke0821/elenc/internal/pathcatalog"
	"github.com/keisuke0821/elenc/internal/rawsampler/uio"
)

func main() {
	devPath := flag.String("device", "", "UIO device path, e.g. /dev/uio0 (required)")
	lockPath := flag.String("lock", "/tmp/elenc_uio.lock", "advisory lock file path")
	dir := flag.String("dir", "", "base directory for rotating log files (required)")
	linesPerFile := flag.Uint64("lines-per-file", 1_000_000, "samples per rotated log file")
	logFormat := flag.String("log-format", "text", "log format: text|json")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "metrics HTTP listen address; empty disables")
	flag.Parse()

	l := logging.New(*logFormat, parseLevel(*logLevel), os.Stderr).With("app", "elenc-read-uio")
	logging.Set(l)

	if *devPath == "" || *dir == "" {
		fmt.Fprintln(os.Stderr, "elenc-read-uio: -device and -dir are required")
		os.Exit(2)
	}

	r, err := uio.Open(*devPath, *lockPath)
	if err != nil {
		l.Error("uio_open_failed", "error", err)
		if errors.Is(err, elerrors.ErrLocked) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	defer r.Close()

	if *metricsAddr != "" {
		srvHTTP := metrics.StartHTTP(*metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		l.Info("shutdown_signal", "signal", sig.String())
		cancel()
	}()

	samples := make(chan uio.Sample, 4096)
	stop := make(chan struct{})
	go func() {
		r.Fill(samples, stop, 100*time.Millisecond)
		close(samples)
	}()
	go func() { <-ctx.Done(); close(stop) }()

	cat := pathcatalog.New(*dir)
	if err := writeLoop(cat, samples, *linesPerFile, l); err != nil {
		l.Error("write_loop_failed", "error", err)
		os.Exit(1)
	}
}

// writeLoop consumes samples until the channel is closed (ctx cancelled),
// rotating to a fresh file every linesPerFile samples.
func writeLoop(cat *pathcatalog.Catalog, samples <-chan uio.Sample, linesPerFile uint64, l *slog.Logger) error {
	var f *os.File
	var w *bufio.Writer
	var n uint64

	rotate := func() error {
		if w != nil {
			_ = w.Flush()
			_ = f.Close()
		}
		path, err := cat.NewPath(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("elenc-read-uio: new file: %w", err)
		}
		nf, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("elenc-read-uio: create %s: %w", path, err)
		}
		f = nf
		w = bufio.NewWriter(f)
		n = 0
		metrics.IncRawSamplerRotation()
		return nil
	}

	for s := range samples {
		if w == nil || n >= linesPerFile {
			if err := rotate(); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "time=%.8f state=%02b\n", s.UTC(), s.State); err != nil {
			return fmt.Errorf("elenc-read-uio: write sample: %w", err)
		}
		n++
	}
	if w != nil {
		_ = w.Flush()
		_ = f.Close()
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
