// Package locs persists fitted localizations to a simple CSV store,
// one row per accepted peak, grouped by movie frame. It is the
// training input for defocus calibration.
package locs

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/Craven1701/storm-analysis/pkg/fitting"
)

// Localization is one stored fit result. Positions and sigmas are in
// pixels, Z in microns.
type Localization struct {
	Frame      int
	Height     float64
	X          float64
	Y          float64
	XSigma     float64
	YSigma     float64
	Background float64
	Z          float64
}

var header = []string{"frame", "height", "x", "y", "xsigma", "ysigma", "background", "z"}

// Writer appends localizations sequentially. Close flushes the file.
type Writer struct {
	f *os.File
	w *csv.Writer
}

// NewWriter creates the store file and records the camera pixel size
// (nanometers) ahead of the column header.
func NewWriter(path string, pixelSize float64) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("locs: creating store: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"pixel_size", strconv.FormatFloat(pixelSize, 'f', -1, 64)}); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w}, nil
}

// AddFrame appends every peak of one fitted frame.
func (w *Writer) AddFrame(frame int, peaks []fitting.Peak) error {
	for _, p := range peaks {
		row := []string{
			strconv.Itoa(frame),
			formatF(p.Height),
			formatF(p.X),
			formatF(p.Y),
			formatF(p.WidthX),
			formatF(p.WidthY),
			formatF(p.Background),
			formatF(p.Z),
		}
		if err := w.w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func formatF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Store is a read-only view of a localization file, indexed by frame.
type Store struct {
	pixelSize float64
	frames    []int
	byFrame   map[int][]Localization
}

// Open reads a store written by Writer.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("locs: opening store: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	// The pixel-size preamble has fewer columns than the data rows.
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("locs: reading store: %w", err)
	}
	if len(records) < 2 || len(records[0]) != 2 || records[0][0] != "pixel_size" {
		return nil, fmt.Errorf("locs: %s is not a localization store", path)
	}
	pixelSize, err := strconv.ParseFloat(records[0][1], 64)
	if err != nil {
		return nil, fmt.Errorf("locs: bad pixel size %q: %w", records[0][1], err)
	}
	if len(records[1]) != len(header) {
		return nil, fmt.Errorf("locs: %s is missing the column header", path)
	}
	for i, col := range records[1] {
		if col != header[i] {
			return nil, fmt.Errorf("locs: unexpected column %q, want %q", col, header[i])
		}
	}

	s := &Store{pixelSize: pixelSize, byFrame: make(map[int][]Localization)}
	for _, row := range records[2:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("locs: row has %d columns, want %d", len(row), len(header))
		}
		vals := make([]float64, len(header)-1)
		frame, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("locs: bad frame number %q: %w", row[0], err)
		}
		for i, v := range row[1:] {
			if vals[i], err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("locs: bad %s value %q: %w", header[i+1], v, err)
			}
		}
		if _, seen := s.byFrame[frame]; !seen {
			s.frames = append(s.frames, frame)
		}
		s.byFrame[frame] = append(s.byFrame[frame], Localization{
			Frame: frame, Height: vals[0], X: vals[1], Y: vals[2],
			XSigma: vals[3], YSigma: vals[4], Background: vals[5], Z: vals[6],
		})
	}
	sort.Ints(s.frames)
	return s, nil
}

// PixelSize returns the camera pixel size in nanometers.
func (s *Store) PixelSize() float64 { return s.pixelSize }

// NumLocalizations reports the total stored row count.
func (s *Store) NumLocalizations() int {
	n := 0
	for _, l := range s.byFrame {
		n += len(l)
	}
	return n
}

// ForEachFrame visits stored frames in ascending order. Returning an
// error from fn stops the iteration and propagates it.
func (s *Store) ForEachFrame(fn func(frame int, locs []Localization) error) error {
	for _, frame := range s.frames {
		if err := fn(frame, s.byFrame[frame]); err != nil {
			return err
		}
	}
	return nil
}
