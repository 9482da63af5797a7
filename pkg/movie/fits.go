package movie

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FITS movies are a single primary HDU: a NAXIS=3 stack of 16-bit
// frames, big endian, offset by BZERO so unsigned camera counts fit
// the signed storage type. Headers are 80-byte records, 36 per
// 2880-byte block.

const fitsBlock = 2880

// FitsReader reads frames from a FITS image stack.
type FitsReader struct {
	f         *os.File
	width     int
	height    int
	frames    int
	dataStart int64
	bzero     float64
	bscale    float64
}

// OpenFits opens path and parses the primary header.
func OpenFits(path string) (*FitsReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("movie: opening fits: %w", err)
	}
	r := &FitsReader{f: f, frames: 1, bscale: 1.0}

	bitpix := 0
	naxis := 0
	record := make([]byte, 80)
	var off int64
	headerDone := false
	for !headerDone {
		for i := 0; i < 36; i++ {
			if _, err := f.ReadAt(record, off); err != nil {
				f.Close()
				return nil, fmt.Errorf("movie: reading fits header record: %w", err)
			}
			off += 80
			keyword := strings.TrimSpace(string(record[:8]))
			if keyword == "END" {
				headerDone = true
				off += int64(80 * (35 - i))
				break
			}
			if len(record) <= 10 || record[8] != '=' {
				continue
			}
			rawValue := strings.TrimSpace(strings.SplitN(string(record[10:]), "/", 2)[0])
			switch keyword {
			case "BITPIX":
				bitpix, _ = strconv.Atoi(rawValue)
			case "NAXIS":
				naxis, _ = strconv.Atoi(rawValue)
			case "NAXIS1":
				r.width, _ = strconv.Atoi(rawValue)
			case "NAXIS2":
				r.height, _ = strconv.Atoi(rawValue)
			case "NAXIS3":
				r.frames, _ = strconv.Atoi(rawValue)
			case "BZERO":
				r.bzero, _ = strconv.ParseFloat(rawValue, 64)
			case "BSCALE":
				r.bscale, _ = strconv.ParseFloat(rawValue, 64)
			}
		}
	}
	if naxis < 2 || r.width <= 0 || r.height <= 0 {
		f.Close()
		return nil, fmt.Errorf("movie: invalid fits geometry: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", naxis, r.width, r.height)
	}
	if naxis == 2 {
		r.frames = 1
	}
	if bitpix != 16 {
		f.Close()
		return nil, fmt.Errorf("movie: fits BITPIX %d not supported for movies, want 16", bitpix)
	}
	r.dataStart = off
	return r, nil
}

func (r *FitsReader) FilmSize() (int, int, int) { return r.width, r.height, r.frames }

func (r *FitsReader) LoadFrame(i int) ([]uint16, error) {
	if i < 0 || i >= r.frames {
		return nil, fmt.Errorf("movie: frame %d out of range [0,%d)", i, r.frames)
	}
	n := r.width * r.height
	raw := make([]byte, 2*n)
	if _, err := r.f.ReadAt(raw, r.dataStart+int64(i)*int64(2*n)); err != nil {
		return nil, fmt.Errorf("movie: reading fits frame %d: %w", i, err)
	}
	frame := make([]uint16, n)
	for j := range frame {
		stored := int16(binary.BigEndian.Uint16(raw[2*j:]))
		physical := float64(stored)*r.bscale + r.bzero
		if physical < 0 {
			physical = 0
		} else if physical > 65535 {
			physical = 65535
		}
		frame[j] = uint16(physical)
	}
	return frame, nil
}

func (r *FitsReader) Close() error { return r.f.Close() }

// FitsWriter accumulates frames in memory and writes the stack on
// Close, once the NAXIS3 count is known.
type FitsWriter struct {
	path   string
	width  int
	height int
	frames [][]uint16
}

// CreateFits creates a FITS movie writer for frames of the given shape.
func CreateFits(path string, width, height int) (*FitsWriter, error) {
	return &FitsWriter{path: path, width: width, height: height}, nil
}

func (w *FitsWriter) AddFrame(frame []uint16) error {
	if err := checkFrameSize(len(frame), w.width, w.height); err != nil {
		return err
	}
	w.frames = append(w.frames, append([]uint16(nil), frame...))
	return nil
}

func fitsRecord(keyword, value string) []byte {
	rec := fmt.Sprintf("%-8s= %20s", keyword, value)
	return []byte(fmt.Sprintf("%-80s", rec))
}

func (w *FitsWriter) Close() error {
	header := make([]byte, 0, fitsBlock)
	header = append(header, fitsRecord("SIMPLE", "T")...)
	header = append(header, fitsRecord("BITPIX", "16")...)
	header = append(header, fitsRecord("NAXIS", "3")...)
	header = append(header, fitsRecord("NAXIS1", strconv.Itoa(w.width))...)
	header = append(header, fitsRecord("NAXIS2", strconv.Itoa(w.height))...)
	header = append(header, fitsRecord("NAXIS3", strconv.Itoa(len(w.frames)))...)
	header = append(header, fitsRecord("BZERO", "32768")...)
	header = append(header, fitsRecord("BSCALE", "1")...)
	header = append(header, []byte(fmt.Sprintf("%-80s", "END"))...)
	for len(header)%fitsBlock != 0 {
		header = append(header, []byte(fmt.Sprintf("%-80s", ""))...)
	}

	dataLen := 2 * w.width * w.height * len(w.frames)
	padded := (dataLen + fitsBlock - 1) / fitsBlock * fitsBlock
	buf := make([]byte, len(header)+padded)
	copy(buf, header)
	at := len(header)
	for _, frame := range w.frames {
		for _, v := range frame {
			binary.BigEndian.PutUint16(buf[at:], uint16(int16(int32(v)-32768)))
			at += 2
		}
	}
	return os.WriteFile(w.path, buf, 0o644)
}
