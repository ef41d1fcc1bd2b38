// Command elenc-read connects to the elevation encoder interface board
// over TCP and logs its packet stream to rotating files on disk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/lockfile"
	"github.com/keisuke0821/elenc/internal/logging"
	"github.com/keisuke0821/elenc/internal/metrics"
	"github.com/keisuke0821/elenc/internal/pathcatalog"
	"github.com/keisuke0821/elenc/internal/rawsampler/tcp"
)

func main() {
	addr := flag.String("upstream", "", "upstream interface board address, host:port (required)")
	dir := flag.String("dir", "", "base directory for rotating log files (required)")
	packetsPerFile := flag.Uint64("packets-per-file", 1_000_000, "packets per rotated log file")
	version := flag.Uint("version", 2020011601, "file format version written to each header")
	logFormat := flag.String("log-format", "text", "log format: text|json")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "metrics HTTP listen address; empty disables")
	lockPath := flag.String("lock", "/tmp/elenc_read.lock", "advisory lock file path")
	resetEnable := flag.Bool("reset-enable", false, "send e#reset_enable once at startup, then exit")
	resetDisable := flag.Bool("reset-disable", false, "send e#reset_disable once at startup, then exit")
	flag.Parse()

	l := logging.New(*logFormat, parseLevel(*logLevel), os.Stderr).With("app", "elenc-read")
	logging.Set(l)

	if *addr == "" || *dir == "" {
		fmt.Fprintln(os.Stderr, "elenc-read: -upstream and -dir are required")
		os.Exit(2)
	}

	lock, err := lockfile.Acquire(*lockPath)
	if err != nil {
		l.Error("lock_failed", "error", err)
		if errors.Is(err, elerrors.ErrLocked) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	defer lock.Release()

	cat := pathcatalog.New(*dir)
	s, err := tcp.New(tcp.Options{
		Addr:           *addr,
		Cat:            cat,
		PacketsPerFile: *packetsPerFile,
		Version:        uint32(*version),
		Logger:         l,
	})
	if err != nil {
		l.Error("rawsampler_init_failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *resetEnable || *resetDisable {
		if err := s.Connect(ctx); err != nil {
			l.Error("connect_failed", "error", err)
			os.Exit(1)
		}
		defer s.Close()
		if *resetEnable {
			err = s.ResetEnable()
		} else {
			err = s.ResetDisable()
		}
		if err != nil {
			l.Error("reset_command_failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if *metricsAddr != "" {
		srvHTTP := metrics.StartHTTP(*metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		l.Info("shutdown_signal", "signal", sig.String())
		cancel()
	}()

	if err := s.Run(ctx); err != nil {
		l.Error("rawsampler_run_failed", "error", err)
		os.Exit(1)
	}
	_ = s.Close()
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
