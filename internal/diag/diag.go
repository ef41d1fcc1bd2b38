// Package diag carries recoverable stream anomalies as data rather than as
// errors, so a caller iterating a long stream can choose to log, count, or
// ignore them without aborting the iteration.
package diag

import "fmt"

// Code names a class of anomaly a stream producer can report.
type Code string

const (
	// CodeUartFragment marks a UART sequence whose first byte was not the
	// 0x55 lead-in; the sequence is skipped and publishes no record.
	CodeUartFragment Code = "uart_fragment"
	// CodeUartTooLong marks a UART packet arriving after the six UARTs of
	// a sequence were already consumed.
	CodeUartTooLong Code = "uart_too_long"
	// CodeSyncDrop marks a SYNC packet arriving before the current
	// sequence's six UARTs were consumed (the SYNC is dropped while that
	// sequence is still healthy), or a DATA packet passed to the machine.
	CodeSyncDrop Code = "sync_drop"
	// CodeFileBoundary marks a sync/UART sequence that was carried across
	// a file boundary via preinfo/postinfo fragmentation state.
	CodeFileBoundary Code = "file_boundary"
	// CodeWraparoundMismatch marks a buffered sample the 32-bit tick
	// counter wrapped past before a pending sync could annotate it.
	CodeWraparoundMismatch Code = "wraparound_mismatch"
)

// Diagnostic is one reported anomaly, anchored to the packet index at which
// it was observed.
type Diagnostic struct {
	Packet  int64
	Code    Code
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("packet %d: %s: %s", d.Packet, d.Code, d.Message)
}

// Sink receives Diagnostics as they are produced. Implementations must not
// block the producer for long; Collector, DiscardSink and LoggerFunc below
// cover the common cases.
type Sink interface {
	Observe(Diagnostic)
}

// Collector is a Sink that appends every Diagnostic to an in-memory slice,
// useful for tests and for batch tools that report a summary at the end.
type Collector struct {
	Diagnostics []Diagnostic
}

func (c *Collector) Observe(d Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, d)
}

// DiscardSink ignores every Diagnostic. It is the zero-value default when a
// caller has no use for anomaly reporting.
type DiscardSink struct{}

func (DiscardSink) Observe(Diagnostic) {}

// LoggerFunc adapts a plain function (typically a *slog.Logger method
// wrapped by the caller) into a Sink.
type LoggerFunc func(Diagnostic)

func (f LoggerFunc) Observe(d Diagnostic) { f(d) }
