// Package elerrors collects the sentinel errors shared across the stream
// reconstruction packages. Callers classify wrapped errors with errors.Is.
package elerrors

import "errors"

var (
	// ErrHeader is returned when a packet or file header fails to parse.
	ErrHeader = errors.New("elenc: header error")
	// ErrFooter is returned when a packet's trailing two bytes match no known kind.
	ErrFooter = errors.New("elenc: footer error")
	// ErrEOF signals a clean end of the packet region; handled internally by ElStream.
	ErrEOF = errors.New("elenc: eof")
	// ErrBufferTooShort signals the retroactive-annotation buffer invariant was violated.
	ErrBufferTooShort = errors.New("elenc: buffer too short")
	// ErrLocked indicates the advisory sampler lock is already held.
	ErrLocked = errors.New("elenc: locked")
	// ErrNoLatest indicates LatestZenith exhausted latest and previous files without a DATA packet.
	ErrNoLatest = errors.New("elenc: no latest data")
	// ErrDeviceMissing indicates the UIO device path is not present at startup.
	ErrDeviceMissing = errors.New("elenc: device missing")
	// ErrUartTooLong is a diagnostic: more than 6 UART bytes seen after a SYNC.
	ErrUartTooLong = errors.New("elenc: uart too long")
	// ErrUartHeaderBroken is a diagnostic: the UART lead-in byte was not 0x55.
	ErrUartHeaderBroken = errors.New("elenc: uart header broken")
	// ErrUartFragmentation is a diagnostic: a SYNC arrived before 6 UARTs completed.
	ErrUartFragmentation = errors.New("elenc: uart fragmentation")
	// ErrTransport wraps network failures in the zenith server/client and samplers.
	ErrTransport = errors.New("elenc: transport error")
)
