// Package pathcatalog enumerates the dated log-file tree
// <base>/YYYY/MM/DD/el_YYYY-MMDD-HHMMSS+0000.dat[.xz] and offers filename-order
// navigation (latest, previous, next) plus a binary-search lookup for the
// file covering a given timestamp.
package pathcatalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when no file satisfies the requested navigation.
var ErrNotFound = errors.New("pathcatalog: not found")

const filePrefix = "el_"

// Catalog enumerates log files under a base directory.
type Catalog struct {
	base string
}

// New returns a Catalog rooted at base.
func New(base string) *Catalog {
	return &Catalog{base: base}
}

// Base returns the catalog's root directory.
func (c *Catalog) Base() string { return c.base }

func isLogFile(name string) bool {
	if !strings.HasPrefix(name, filePrefix) {
		return false
	}
	return strings.HasSuffix(name, ".dat") || strings.HasSuffix(name, ".dat.xz")
}

// sortedSubdirs returns the names of dir's subdirectories in ascending
// lexicographic order. A missing directory yields an empty slice.
func sortedSubdirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// sortedLogFiles returns the log filenames directly inside dir, ascending.
func sortedLogFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isLogFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// dayDir is one YYYY/MM/DD directory together with its sorted log files.
type dayDir struct {
	path  string
	files []string
}

// allDays walks the whole base tree and returns every YYYY/MM/DD directory,
// in ascending path order (which matches chronological order for this
// naming scheme), whether or not it currently holds any files.
func (c *Catalog) allDays() []dayDir {
	var days []dayDir
	for _, y := range sortedSubdirs(c.base) {
		yearDir := filepath.Join(c.base, y)
		for _, m := range sortedSubdirs(yearDir) {
			monthDir := filepath.Join(yearDir, m)
			for _, d := range sortedSubdirs(monthDir) {
				dayPath := filepath.Join(monthDir, d)
				days = append(days, dayDir{path: dayPath, files: sortedLogFiles(dayPath)})
			}
		}
	}
	return days
}

// Latest returns the lexicographically largest file in the most recent
// non-empty day directory.
func (c *Catalog) Latest() (string, error) {
	years := sortedSubdirs(c.base)
	for i := len(years) - 1; i >= 0; i-- {
		yearDir := filepath.Join(c.base, years[i])
		months := sortedSubdirs(yearDir)
		for j := len(months) - 1; j >= 0; j-- {
			monthDir := filepath.Join(yearDir, months[j])
			days := sortedSubdirs(monthDir)
			for k := len(days) - 1; k >= 0; k-- {
				dayPath := filepath.Join(monthDir, days[k])
				files := sortedLogFiles(dayPath)
				if len(files) > 0 {
					return filepath.Join(dayPath, files[len(files)-1]), nil
				}
			}
		}
	}
	return "", fmt.Errorf("%w: no log files under %s", ErrNotFound, c.base)
}

// dayIndex returns the index of dir within days, using the fact that days
// is sorted ascending by path.
func dayIndex(days []dayDir, dir string) (idx int, exact bool) {
	idx = sort.Search(len(days), func(i int) bool { return days[i].path >= dir })
	exact = idx < len(days) && days[idx].path == dir
	return idx, exact
}

// Previous returns the file immediately preceding p in directory+name
// order, crossing day/month/year boundaries as needed.
func (c *Catalog) Previous(p string) (string, error) {
	dir, name := filepath.Split(p)
	dir = filepath.Clean(dir)
	days := c.allDays()
	idx, exact := dayIndex(days, dir)
	if exact {
		files := days[idx].files
		pos := sort.SearchStrings(files, name)
		if pos < len(files) && files[pos] == name && pos > 0 {
			return filepath.Join(dir, files[pos-1]), nil
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if len(days[i].files) > 0 {
			return filepath.Join(days[i].path, days[i].files[len(days[i].files)-1]), nil
		}
	}
	return "", fmt.Errorf("%w: no file before %s", ErrNotFound, p)
}

// Next returns the file immediately following p, symmetric to Previous.
func (c *Catalog) Next(p string) (string, error) {
	dir, name := filepath.Split(p)
	dir = filepath.Clean(dir)
	days := c.allDays()
	idx, exact := dayIndex(days, dir)
	if exact {
		files := days[idx].files
		pos := sort.SearchStrings(files, name)
		if pos < len(files) && files[pos] == name && pos+1 < len(files) {
			return filepath.Join(dir, files[pos+1]), nil
		}
	}
	start := idx
	if exact {
		start = idx + 1
	}
	for i := start; i < len(days); i++ {
		if len(days[i].files) > 0 {
			return filepath.Join(days[i].path, days[i].files[0]), nil
		}
	}
	return "", fmt.Errorf("%w: no file after %s", ErrNotFound, p)
}

// formatName renders the filename an entry for dt would have, used only as
// a comparison key for locating the covering file — it need not exist.
func formatName(dt time.Time) string {
	u := dt.UTC()
	return fmt.Sprintf("%s%04d-%02d%02d-%02d%02d%02d+0000.dat",
		filePrefix, u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second())
}

func dayDirPath(base string, dt time.Time) string {
	u := dt.UTC()
	return filepath.Join(base, fmt.Sprintf("%04d", u.Year()), fmt.Sprintf("%02d", u.Month()), fmt.Sprintf("%02d", u.Day()))
}

// Locate returns the file covering dt: the formatted filename for dt is
// binary-searched within the enclosing day directory's sorted listing, and
// the Previous of the element at the resulting insertion index is
// returned. When no directory holds a file at or after dt (dt is beyond
// the most recently logged data), Locate falls back to Latest.
func (c *Catalog) Locate(dt time.Time) (string, error) {
	target := formatName(dt)
	dir := dayDirPath(c.base, dt)
	days := c.allDays()
	idx, exact := dayIndex(days, dir)

	if exact {
		files := days[idx].files
		pos := sort.Search(len(files), func(i int) bool { return files[i] >= target })
		if pos < len(files) {
			return c.Previous(filepath.Join(dir, files[pos]))
		}
		idx++ // this day is exhausted; continue the forward scan below
	}

	for i := idx; i < len(days); i++ {
		if len(days[i].files) > 0 {
			return c.Previous(filepath.Join(days[i].path, days[i].files[0]))
		}
	}
	return c.Latest()
}

// allFiles flattens allDays into a single filename-ordered slice of full
// paths.
func (c *Catalog) allFiles() []string {
	var out []string
	for _, d := range c.allDays() {
		for _, f := range d.files {
			out = append(out, filepath.Join(d.path, f))
		}
	}
	return out
}

// NewPath allocates a fresh log file path for now under the catalog's base
// directory, creating the YYYY/MM/DD directory if needed. It returns
// ErrNotFound-wrapped collision errors if a file with that exact name
// already exists (the format has one-second resolution).
func (c *Catalog) NewPath(now time.Time) (string, error) {
	dir := dayDirPath(c.base, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pathcatalog: create day dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, formatName(now))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: filename collision at %s", ErrNotFound, path)
	}
	return path, nil
}

// Between returns every log file from start through end, inclusive, in
// filename order.
func (c *Catalog) Between(start, end string) ([]string, error) {
	all := c.allFiles()
	si := sort.SearchStrings(all, start)
	if si >= len(all) || all[si] != start {
		return nil, fmt.Errorf("%w: start path %s", ErrNotFound, start)
	}
	ei := sort.SearchStrings(all, end)
	if ei >= len(all) || all[ei] != end {
		return nil, fmt.Errorf("%w: end path %s", ErrNotFound, end)
	}
	if ei < si {
		return nil, fmt.Errorf("%w: end path %s precedes start path %s", ErrNotFound, end, start)
	}
	return all[si : ei+1], nil
}
