// Command elenc-latest-zenith prints the most recent zenith angle found in
// a log directory tree and exits, for use from scripts or cron.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/keisuke0821/elenc/internal/logging"
	"github.com/keisuke0821/elenc/internal/pathcatalog"
	"github.com/keisuke0821/elenc/internal/zenith"
)

func main() {
	dir := flag.String("dir", "", "base directory of the log file tree (required)")
	logLevel := flag.String("log-level", "warn", "log level: debug|info|warn|error")
	flag.Parse()

	l := logging.New("text", parseLevel(*logLevel), os.Stderr).With("app", "elenc-latest-zenith")
	logging.Set(l)

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "elenc-latest-zenith: -dir is required")
		os.Exit(2)
	}

	cat := pathcatalog.New(*dir)
	z, err := zenith.Latest(cat)
	if err != nil {
		l.Error("latest_zenith_failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%.3f\n", z)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
