// Package zenith converts raw encoder counts into telescope zenith angle
// and locates the most recent such value in the log tree.
package zenith

import (
	"errors"
	"fmt"

	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/elstream"
	"github.com/keisuke0821/elenc/internal/packet"
	"github.com/keisuke0821/elenc/internal/pathcatalog"
)

// origin and scale are the encoder-to-zenith linear mapping's current
// calibration. They must be updated here (and nowhere else) when the
// encoder is recalibrated.
const (
	origin = 7062
	scale  = 900.0
)

// EncoderToZenith converts a raw encoder count into zenith angle degrees.
func EncoderToZenith(enc int32) float64 {
	return float64(enc-origin) / scale
}

// Latest scans backward from the newest log file in cat for the most
// recent DATA packet, falling back to the previous file if the latest one
// has none, or fails to open or decode at all (e.g. it was just created
// and is empty or still mid-write).
func Latest(cat *pathcatalog.Catalog) (float64, error) {
	path, err := cat.Latest()
	if err != nil {
		return 0, fmt.Errorf("zenith: %w", err)
	}
	if z, ok, err := tailZenith(path); err == nil && ok {
		return z, nil
	}

	prev, err := cat.Previous(path)
	if err != nil {
		return 0, fmt.Errorf("%w: no previous file to fall back to", elerrors.ErrNoLatest)
	}
	z, ok, err := tailZenith(prev)
	if err != nil {
		return 0, fmt.Errorf("%w: previous file %s: %v", elerrors.ErrNoLatest, prev, err)
	}
	if !ok {
		return 0, elerrors.ErrNoLatest
	}
	return z, nil
}

// tailZenith scans path from its last packet backward for the first DATA
// packet, returning ok=false (no error) if the file has none.
func tailZenith(path string) (z float64, ok bool, err error) {
	st, err := elstream.Open(path, elstream.Options{})
	if err != nil {
		return 0, false, err
	}
	defer st.Close()

	length, err := st.Length()
	if err != nil {
		return 0, false, err
	}
	for i := length; i > 0; i-- {
		_, data, kind, err := st.GetData(i - 1)
		if err != nil {
			if errors.Is(err, elerrors.ErrEOF) {
				continue
			}
			return 0, false, err
		}
		if kind == packet.KindData {
			return EncoderToZenith(data), true, nil
		}
	}
	return 0, false, nil
}
