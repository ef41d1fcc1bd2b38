// Package span assembles the annotated samples from every log file
// covering a requested time range into one contiguous, time-ordered
// sequence.
package span

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/keisuke0821/elenc/internal/diag"
	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/elstream"
	"github.com/keisuke0821/elenc/internal/metrics"
	"github.com/keisuke0821/elenc/internal/pathcatalog"
	"github.com/keisuke0821/elenc/internal/syncmachine"
)

// Row is one assembled, time-stamped sample.
type Row struct {
	Stamp      uint32
	UnixTime   float64
	Data       int32
	SyncID     int64
	SyncOffset int32
}

// Options configures Assemble.
type Options struct {
	// Sink receives anomaly reports from every file opened. Defaults to
	// discarding them.
	Sink diag.Sink
	// Parallel bounds how many files are decoded concurrently. Each file
	// still contributes its rows in order; this only overlaps the I/O and
	// decode work across files, which are otherwise independent once their
	// preinfo has been resolved. 0 or 1 means sequential.
	Parallel int
}

// Assemble returns every sample of the files from the one covering dtStart
// through the one after the file covering dtEnd (rows are not trimmed to
// [dtStart, dtEnd)), time-stamped against the first file's creation time
// and first data stamp —
// matching how a single recording session's encoder tick counter maps to
// wall-clock time.
func Assemble(cat *pathcatalog.Catalog, dtStart, dtEnd time.Time, opts Options) ([]Row, error) {
	start := time.Now()
	defer func() { metrics.ObserveSpanAssemble(time.Since(start).Seconds()) }()

	if !dtStart.Before(dtEnd) {
		return nil, fmt.Errorf("span: start %v must precede end %v", dtStart, dtEnd)
	}
	sink := opts.Sink
	if sink == nil {
		sink = diag.DiscardSink{}
	}

	pathStart, err := cat.Locate(dtStart)
	if err != nil {
		return nil, fmt.Errorf("span: locate start: %w", err)
	}
	pathEndCovering, err := cat.Locate(dtEnd)
	if err != nil {
		return nil, fmt.Errorf("span: locate end: %w", err)
	}
	pathEnd, err := cat.Next(pathEndCovering)
	if err != nil {
		// dtEnd falls within the latest file on disk; there is no "next"
		// to extend to, so the covering file itself is the last one needed.
		pathEnd = pathEndCovering
	}

	paths, err := cat.Between(pathStart, pathEnd)
	if err != nil {
		return nil, fmt.Errorf("span: enumerate range: %w", err)
	}

	chunks, dtSt, stSt, err := readAll(cat, paths, sink, opts.Parallel)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	rows := make([]Row, 0, total)
	for _, c := range chunks {
		for _, s := range c {
			rows = append(rows, Row{
				Stamp:      s.Stamp,
				UnixTime:   dtSt + float64(int64(s.Stamp)-int64(stSt))/1e3,
				Data:       s.Data,
				SyncID:     s.SyncID,
				SyncOffset: s.SyncOffset,
			})
		}
	}
	return rows, nil
}

// readAll decodes every path's samples, returning them grouped by file
// (preserving per-file order) plus the first file's creation time and
// first data stamp, used as the time-base for the whole span.
func readAll(cat *pathcatalog.Catalog, paths []string, sink diag.Sink, parallel int) (chunks [][]elstream.Sample, dtSt float64, stSt uint32, err error) {
	chunks = make([][]elstream.Sample, len(paths))

	preinfos := make([]syncmachine.Carry, len(paths))
	for i, p := range paths {
		prev, perr := cat.Previous(p)
		if perr != nil {
			preinfos[i] = syncmachine.NoCarry
			continue
		}
		carry, rerr := lookupPreinfo(prev)
		if rerr != nil {
			return nil, 0, 0, fmt.Errorf("span: preinfo for %s: %w", p, rerr)
		}
		preinfos[i] = carry
	}

	decode := func(i int) error {
		var post *elstream.Postinfo
		if i+1 < len(paths) {
			post = &elstream.Postinfo{NextPath: paths[i+1]}
		}
		rows, derr := readOne(paths[i], preinfos[i], post, sink)
		if derr != nil {
			return fmt.Errorf("span: read %s: %w", paths[i], derr)
		}
		chunks[i] = rows
		return nil
	}

	if parallel <= 1 || len(paths) <= 1 {
		for i := range paths {
			if err := decode(i); err != nil {
				return nil, 0, 0, err
			}
		}
	} else {
		if err := boundedParallel(len(paths), parallel, decode); err != nil {
			return nil, 0, 0, err
		}
	}

	if len(paths) == 0 || len(chunks[0]) == 0 {
		return chunks, 0, 0, nil
	}

	first, ferr := elstream.Open(paths[0], elstream.Options{})
	if ferr != nil {
		return nil, 0, 0, ferr
	}
	defer first.Close()
	dtSt = float64(first.Header().Created.UnixNano()) / 1e9
	stSt = chunks[0][0].Stamp
	return chunks, dtSt, stSt, nil
}

func lookupPreinfo(path string) (syncmachine.Carry, error) {
	st, err := elstream.Open(path, elstream.Options{})
	if err != nil {
		return syncmachine.Carry{}, err
	}
	defer st.Close()
	rec, count, err := st.GetLastSync(true)
	if errors.Is(err, elerrors.ErrEOF) {
		// The previous file holds no sync record.
		return syncmachine.NoCarry, nil
	}
	if err != nil {
		return syncmachine.Carry{}, err
	}
	return syncmachine.Carry{Rec: rec, Count: count}, nil
}

func readOne(path string, preinfo syncmachine.Carry, post *elstream.Postinfo, sink diag.Sink) ([]elstream.Sample, error) {
	st, err := elstream.Open(path, elstream.Options{Preinfo: preinfo, Post: post, Sink: sink})
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var rows []elstream.Sample
	for {
		sm, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, sm)
	}
	return rows, nil
}

// boundedParallel runs fn(0..n) with at most width goroutines in flight,
// returning the first error encountered.
func boundedParallel(n, width int, fn func(i int) error) error {
	sem := make(chan struct{}, width)
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			errCh <- fn(i)
		}()
	}
	var firstErr error
	for i := 0; i < n; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
