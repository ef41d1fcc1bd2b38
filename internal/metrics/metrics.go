package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/keisuke0821/elenc/internal/diag"
	"github.com/keisuke0821/elenc/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	PacketsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packets_decoded_total",
		Help: "Total packets decoded from log files, by kind.",
	}, []string{"kind"})
	SamplesAnnotated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "samples_annotated_total",
		Help: "Total DATA samples emitted by a stream reader.",
	})
	SyncRecordsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_records_completed_total",
		Help: "Total sync records fully reconstructed (SYNC + six UART bytes).",
	})
	SyncFragmentsCarried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_fragments_carried_total",
		Help: "Total sync sequences carried across a file boundary.",
	})
	RawSamplerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raw_sampler_bytes_total",
		Help: "Total bytes relayed by a raw sampler, by transport.",
	}, []string{"transport"})
	RawSamplerRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raw_sampler_file_rotations_total",
		Help: "Total log file rotations performed by a raw sampler.",
	})
	ZenithRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zenith_requests_total",
		Help: "Total zenith lookups served by the zenith server.",
	})
	ZenithValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zenith_degrees",
		Help: "Most recently served zenith angle in degrees.",
	})
	SpanAssembled = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "span_assemble_seconds",
		Help:    "Time to assemble a requested time span across log files.",
		Buckets: prometheus.DefBuckets,
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	Diagnostics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diagnostics_total",
		Help: "Recoverable stream anomalies reported, by code.",
	}, []string{"code"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrFileRead    = "file_read"
	ErrFileDecode  = "file_decode"
	ErrCatalog     = "catalog"
	ErrTransport   = "transport"
	ErrSamplerLock = "sampler_lock"
	ErrZenithNet   = "zenith_net"
)

// StartHTTP serves Prometheus metrics at /metrics on a fresh mux, along
// with a /ready endpoint driven by SetReadinessFunc.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localPacketsDecoded   uint64
	localSamples          uint64
	localSyncCompleted    uint64
	localSyncFragments    uint64
	localZenithRequests   uint64
	localErrors           uint64
	localDiagnostics      uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	PacketsDecoded uint64
	Samples        uint64
	SyncCompleted  uint64
	SyncFragments  uint64
	ZenithRequests uint64
	Errors         uint64
	Diagnostics    uint64
}

func Snap() Snapshot {
	return Snapshot{
		PacketsDecoded: atomic.LoadUint64(&localPacketsDecoded),
		Samples:        atomic.LoadUint64(&localSamples),
		SyncCompleted:  atomic.LoadUint64(&localSyncCompleted),
		SyncFragments:  atomic.LoadUint64(&localSyncFragments),
		ZenithRequests: atomic.LoadUint64(&localZenithRequests),
		Errors:         atomic.LoadUint64(&localErrors),
		Diagnostics:    atomic.LoadUint64(&localDiagnostics),
	}
}

// IncPacketDecoded records one decoded packet of the given kind (e.g. "DATA", "SYNC", "UART").
func IncPacketDecoded(kind string) {
	PacketsDecoded.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localPacketsDecoded, 1)
}

func IncSampleAnnotated() {
	SamplesAnnotated.Inc()
	atomic.AddUint64(&localSamples, 1)
}

func IncSyncCompleted() {
	SyncRecordsCompleted.Inc()
	atomic.AddUint64(&localSyncCompleted, 1)
}

func IncSyncFragmentCarried() {
	SyncFragmentsCarried.Inc()
	atomic.AddUint64(&localSyncFragments, 1)
}

func AddRawSamplerBytes(transport string, n int) {
	RawSamplerBytes.WithLabelValues(transport).Add(float64(n))
}

func IncRawSamplerRotation() {
	RawSamplerRotations.Inc()
}

func IncZenithRequest(z float64) {
	ZenithRequests.Inc()
	ZenithValue.Set(z)
	atomic.AddUint64(&localZenithRequests, 1)
}

func ObserveSpanAssemble(seconds float64) {
	SpanAssembled.Observe(seconds)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncDiagnostic(code string) {
	Diagnostics.WithLabelValues(code).Inc()
	atomic.AddUint64(&localDiagnostics, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrFileRead, ErrFileDecode, ErrCatalog, ErrTransport, ErrSamplerLock, ErrZenithNet} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }

// DiagSink adapts the diagnostics counters into a diag.Sink, so a stream
// reader's anomaly reports show up as Prometheus series without every
// caller having to wire counting by hand.
func DiagSink() diag.Sink {
	return diag.LoggerFunc(func(d diag.Diagnostic) {
		IncDiagnostic(string(d.Code))
		logging.L().Warn("stream_diagnostic", "packet", d.Packet, "code", d.Code, "message", d.Message)
	})
}
