package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

type appConfig struct {
	logDir       string
	listenAddr   string
	readTimeout  time.Duration
	logFormat    string
	logLevel     string
	metricsAddr  string
	mdnsEnable   bool
	mdnsName     string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	logDir := flag.String("log-dir", "", "base directory of the encoder log file tree (required)")
	listen := flag.String("listen", ":9876", "TCP listen address")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "per-connection read deadline")
	logFormat := flag.String("log-format", "text", "log format: text|json")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "metrics HTTP listen address (e.g., :9101); empty disables")
	mdnsEnable := flag.Bool("mdns-enable", false, "enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default elenc-zenith-server-<hostname>)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.logDir = *logDir
	cfg.listenAddr = *listen
	cfg.readTimeout = *readTimeout
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.logDir == "" {
		return errors.New("log-dir is required")
	}
	if c.readTimeout <= 0 {
		return errors.New("read-timeout must be > 0")
	}
	return nil
}

func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["log-dir"]; !ok {
		if v, ok := get("ELENC_ZENITH_LOG_DIR"); ok && v != "" {
			c.logDir = v
		}
	}
	if _, ok := set["listen"]; !ok {
		if v, ok := get("ELENC_ZENITH_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["read-timeout"]; !ok {
		if v, ok := get("ELENC_ZENITH_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.readTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ELENC_ZENITH_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("ELENC_ZENITH_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("ELENC_ZENITH_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("ELENC_ZENITH_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("ELENC_ZENITH_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("ELENC_ZENITH_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
