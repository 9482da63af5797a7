package movie

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DAX is the simplest movie container: raw 16-bit frames back to back,
// with the geometry in a text .inf sidecar next to the data file.

func infPath(daxPath string) string {
	return strings.TrimSuffix(daxPath, ".dax") + ".inf"
}

// DaxReader reads a .dax movie plus its .inf sidecar.
type DaxReader struct {
	f         *os.File
	width     int
	height    int
	frames    int
	bigEndian bool
}

// OpenDax opens path and parses the matching .inf file.
func OpenDax(path string) (*DaxReader, error) {
	inf, err := os.ReadFile(infPath(path))
	if err != nil {
		return nil, fmt.Errorf("movie: reading dax sidecar: %w", err)
	}

	r := &DaxReader{}
	for _, line := range strings.Split(string(inf), "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "frame dimensions":
			dims := strings.Split(value, "x")
			if len(dims) != 2 {
				return nil, fmt.Errorf("movie: bad dax frame dimensions %q", value)
			}
			if r.width, err = strconv.Atoi(strings.TrimSpace(dims[0])); err != nil {
				return nil, fmt.Errorf("movie: bad dax width: %w", err)
			}
			if r.height, err = strconv.Atoi(strings.TrimSpace(dims[1])); err != nil {
				return nil, fmt.Errorf("movie: bad dax height: %w", err)
			}
		case "number of frames":
			if r.frames, err = strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("movie: bad dax frame count: %w", err)
			}
		case "data type":
			r.bigEndian = strings.Contains(value, "big endian")
		}
	}
	if r.width <= 0 || r.height <= 0 {
		return nil, fmt.Errorf("movie: dax sidecar is missing frame dimensions")
	}

	if r.f, err = os.Open(path); err != nil {
		return nil, fmt.Errorf("movie: opening dax data: %w", err)
	}
	if r.frames == 0 {
		// Older sidecars omit the frame count; take it from the data
		// file size.
		fi, err := r.f.Stat()
		if err != nil {
			r.f.Close()
			return nil, fmt.Errorf("movie: sizing dax data: %w", err)
		}
		r.frames = int(fi.Size() / int64(2*r.width*r.height))
	}
	return r, nil
}

func (r *DaxReader) FilmSize() (int, int, int) { return r.width, r.height, r.frames }

func (r *DaxReader) LoadFrame(i int) ([]uint16, error) {
	if i < 0 || i >= r.frames {
		return nil, fmt.Errorf("movie: frame %d out of range [0,%d)", i, r.frames)
	}
	n := r.width * r.height
	raw := make([]byte, 2*n)
	if _, err := r.f.ReadAt(raw, int64(i)*int64(2*n)); err != nil {
		return nil, fmt.Errorf("movie: reading dax frame %d: %w", i, err)
	}
	frame := make([]uint16, n)
	if r.bigEndian {
		for j := range frame {
			frame[j] = binary.BigEndian.Uint16(raw[2*j:])
		}
	} else {
		for j := range frame {
			frame[j] = binary.LittleEndian.Uint16(raw[2*j:])
		}
	}
	return frame, nil
}

func (r *DaxReader) Close() error { return r.f.Close() }

// DaxWriter appends raw little-endian frames and writes the .inf
// sidecar on Close.
type DaxWriter struct {
	f      *os.File
	w      *bufio.Writer
	path   string
	width  int
	height int
	frames int
}

// CreateDax creates a .dax movie for frames of the given shape.
func CreateDax(path string, width, height int) (*DaxWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("movie: creating dax: %w", err)
	}
	return &DaxWriter{f: f, w: bufio.NewWriter(f), path: path, width: width, height: height}, nil
}

func (w *DaxWriter) AddFrame(frame []uint16) error {
	if err := checkFrameSize(len(frame), w.width, w.height); err != nil {
		return err
	}
	raw := make([]byte, 2*len(frame))
	for j, v := range frame {
		binary.LittleEndian.PutUint16(raw[2*j:], v)
	}
	if _, err := w.w.Write(raw); err != nil {
		return err
	}
	w.frames++
	return nil
}

func (w *DaxWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Close(); err != nil {
		return err
	}
	inf := fmt.Sprintf("binary file\n"+
		"frame dimensions = %d x %d\n"+
		"number of frames = %d\n"+
		"data type = 16 bit integers (binary, little endian)\n",
		w.width, w.height, w.frames)
	return os.WriteFile(infPath(w.path), []byte(inf), 0o644)
}
