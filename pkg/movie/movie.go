// Package movie reads and writes SMLM movie containers: DAX (raw
// uint16 frames with an .inf sidecar), multi-page TIFF, and FITS.
// Pixel values are unsigned 16-bit intensities.
package movie

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Reader is random access over the frames of one movie file.
type Reader interface {
	// FilmSize returns frame width, frame height and frame count.
	FilmSize() (width, height, frames int)
	// LoadFrame reads frame i (zero based), row major.
	LoadFrame(i int) ([]uint16, error)
	Close() error
}

// Writer appends frames sequentially. Close finalizes the container;
// a movie is not readable before Close.
type Writer interface {
	AddFrame(frame []uint16) error
	Close() error
}

// InferReader opens the right reader for the file extension.
func InferReader(path string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dax":
		return OpenDax(path)
	case ".tif", ".tiff":
		return OpenTiff(path)
	case ".fits":
		return OpenFits(path)
	}
	return nil, fmt.Errorf("movie: no reader for %q", path)
}

// InferWriter creates the right writer for the file extension, for
// frames of the given shape.
func InferWriter(path string, width, height int) (Writer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dax":
		return CreateDax(path, width, height)
	case ".tif", ".tiff":
		return CreateTiff(path, width, height)
	case ".fits":
		return CreateFits(path, width, height)
	}
	return nil, fmt.Errorf("movie: no writer for %q", path)
}

func checkFrameSize(n, width, height int) error {
	if n != width*height {
		return fmt.Errorf("movie: frame has %d pixels, want %dx%d", n, width, height)
	}
	return nil
}
