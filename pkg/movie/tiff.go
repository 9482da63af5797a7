package movie

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Multi-page grayscale TIFF support. The x/image/tiff codec only
// handles the first directory of a file, so movies walk the IFD chain
// directly; only uncompressed 16-bit single-sample pages are accepted,
// which is what SMLM acquisition software emits.

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279

	typeShort = 3
	typeLong  = 4
)

type tiffPage struct {
	width, height int
	stripOffsets  []uint32
	stripCounts   []uint32
}

// TiffReader indexes every page of a multi-page TIFF movie.
type TiffReader struct {
	f      *os.File
	order  binary.ByteOrder
	pages  []tiffPage
	width  int
	height int
}

// OpenTiff opens a TIFF movie and walks its directory chain.
func OpenTiff(path string) (*TiffReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("movie: opening tiff: %w", err)
	}
	r := &TiffReader{f: f}

	head := make([]byte, 8)
	if _, err := f.ReadAt(head, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("movie: reading tiff header: %w", err)
	}
	switch string(head[:2]) {
	case "II":
		r.order = binary.LittleEndian
	case "MM":
		r.order = binary.BigEndian
	default:
		f.Close()
		return nil, fmt.Errorf("movie: %q is not a tiff file", path)
	}
	if r.order.Uint16(head[2:4]) != 42 {
		f.Close()
		return nil, fmt.Errorf("movie: %q is not a tiff file", path)
	}

	for off := r.order.Uint32(head[4:8]); off != 0; {
		page, next, err := r.readIFD(off)
		if err != nil {
			f.Close()
			return nil, err
		}
		if len(r.pages) == 0 {
			r.width, r.height = page.width, page.height
		} else if page.width != r.width || page.height != r.height {
			f.Close()
			return nil, fmt.Errorf("movie: tiff page %d is %dx%d, movie is %dx%d",
				len(r.pages), page.width, page.height, r.width, r.height)
		}
		r.pages = append(r.pages, page)
		off = next
	}
	if len(r.pages) == 0 {
		f.Close()
		return nil, fmt.Errorf("movie: tiff %q has no pages", path)
	}
	return r, nil
}

func (r *TiffReader) readIFD(off uint32) (tiffPage, uint32, error) {
	var page tiffPage
	countBuf := make([]byte, 2)
	if _, err := r.f.ReadAt(countBuf, int64(off)); err != nil {
		return page, 0, fmt.Errorf("movie: reading tiff IFD: %w", err)
	}
	n := int(r.order.Uint16(countBuf))
	entries := make([]byte, 12*n+4)
	if _, err := r.f.ReadAt(entries, int64(off)+2); err != nil {
		return page, 0, fmt.Errorf("movie: reading tiff IFD entries: %w", err)
	}

	bits := 0
	compression := 1
	for i := 0; i < n; i++ {
		e := entries[12*i : 12*i+12]
		tag := r.order.Uint16(e[0:2])
		typ := r.order.Uint16(e[2:4])
		cnt := r.order.Uint32(e[4:8])
		switch tag {
		case tagImageWidth:
			page.width = int(r.entryValue(e, typ))
		case tagImageLength:
			page.height = int(r.entryValue(e, typ))
		case tagBitsPerSample:
			bits = int(r.entryValue(e, typ))
		case tagCompression:
			compression = int(r.entryValue(e, typ))
		case tagStripOffsets:
			vals, err := r.entryArray(e, typ, cnt)
			if err != nil {
				return page, 0, err
			}
			page.stripOffsets = vals
		case tagStripByteCounts:
			vals, err := r.entryArray(e, typ, cnt)
			if err != nil {
				return page, 0, err
			}
			page.stripCounts = vals
		}
	}
	if bits != 16 {
		return page, 0, fmt.Errorf("movie: tiff has %d bits per sample, want 16", bits)
	}
	if compression != 1 {
		return page, 0, fmt.Errorf("movie: tiff compression %d not supported", compression)
	}
	if page.width <= 0 || page.height <= 0 || len(page.stripOffsets) == 0 {
		return page, 0, fmt.Errorf("movie: tiff page is missing geometry tags")
	}
	if len(page.stripOffsets) != len(page.stripCounts) {
		return page, 0, fmt.Errorf("movie: tiff strip offsets and counts disagree")
	}
	next := r.order.Uint32(entries[12*n : 12*n+4])
	return page, next, nil
}

// entryValue reads an inline scalar tag value.
func (r *TiffReader) entryValue(e []byte, typ uint16) uint32 {
	if typ == typeShort {
		return uint32(r.order.Uint16(e[8:10]))
	}
	return r.order.Uint32(e[8:12])
}

// entryArray reads a scalar or offset array tag value.
func (r *TiffReader) entryArray(e []byte, typ uint16, cnt uint32) ([]uint32, error) {
	size := uint32(4)
	if typ == typeShort {
		size = 2
	}
	if cnt*size <= 4 {
		vals := make([]uint32, cnt)
		for i := range vals {
			if typ == typeShort {
				vals[i] = uint32(r.order.Uint16(e[8+2*i:]))
			} else {
				vals[i] = r.order.Uint32(e[8+4*i:])
			}
		}
		return vals, nil
	}
	raw := make([]byte, cnt*size)
	if _, err := r.f.ReadAt(raw, int64(r.order.Uint32(e[8:12]))); err != nil {
		return nil, fmt.Errorf("movie: reading tiff tag array: %w", err)
	}
	vals := make([]uint32, cnt)
	for i := range vals {
		if typ == typeShort {
			vals[i] = uint32(r.order.Uint16(raw[2*i:]))
		} else {
			vals[i] = r.order.Uint32(raw[4*i:])
		}
	}
	return vals, nil
}

func (r *TiffReader) FilmSize() (int, int, int) { return r.width, r.height, len(r.pages) }

func (r *TiffReader) LoadFrame(i int) ([]uint16, error) {
	if i < 0 || i >= len(r.pages) {
		return nil, fmt.Errorf("movie: frame %d out of range [0,%d)", i, len(r.pages))
	}
	page := r.pages[i]
	raw := make([]byte, 2*page.width*page.height)
	at := 0
	for s := range page.stripOffsets {
		cnt := int(page.stripCounts[s])
		if at+cnt > len(raw) {
			return nil, fmt.Errorf("movie: tiff frame %d strips overflow the page", i)
		}
		if _, err := r.f.ReadAt(raw[at:at+cnt], int64(page.stripOffsets[s])); err != nil {
			return nil, fmt.Errorf("movie: reading tiff frame %d: %w", i, err)
		}
		at += cnt
	}
	frame := make([]uint16, page.width*page.height)
	for j := range frame {
		frame[j] = r.order.Uint16(raw[2*j:])
	}
	return frame, nil
}

func (r *TiffReader) Close() error { return r.f.Close() }

// TiffWriter accumulates frames in memory and writes a single-strip
// multi-page little-endian TIFF on Close.
type TiffWriter struct {
	path   string
	width  int
	height int
	frames [][]uint16
}

// CreateTiff creates a TIFF movie writer for frames of the given shape.
func CreateTiff(path string, width, height int) (*TiffWriter, error) {
	return &TiffWriter{path: path, width: width, height: height}, nil
}

func (w *TiffWriter) AddFrame(frame []uint16) error {
	if err := checkFrameSize(len(frame), w.width, w.height); err != nil {
		return err
	}
	w.frames = append(w.frames, append([]uint16(nil), frame...))
	return nil
}

func (w *TiffWriter) Close() error {
	le := binary.LittleEndian
	frameBytes := 2 * w.width * w.height
	nEntries := 8
	ifdSize := 2 + 12*nEntries + 4
	ifdStart := 8 + len(w.frames)*frameBytes

	buf := make([]byte, ifdStart+len(w.frames)*ifdSize)
	copy(buf, "II")
	le.PutUint16(buf[2:], 42)
	le.PutUint32(buf[4:], uint32(ifdStart))

	for i, frame := range w.frames {
		dataOff := 8 + i*frameBytes
		for j, v := range frame {
			le.PutUint16(buf[dataOff+2*j:], v)
		}

		ifdOff := ifdStart + i*ifdSize
		le.PutUint16(buf[ifdOff:], uint16(nEntries))
		at := ifdOff + 2
		putEntry := func(tag, typ uint16, value uint32) {
			le.PutUint16(buf[at:], tag)
			le.PutUint16(buf[at+2:], typ)
			le.PutUint32(buf[at+4:], 1)
			if typ == typeShort {
				le.PutUint16(buf[at+8:], uint16(value))
			} else {
				le.PutUint32(buf[at+8:], value)
			}
			at += 12
		}
		putEntry(tagImageWidth, typeLong, uint32(w.width))
		putEntry(tagImageLength, typeLong, uint32(w.height))
		putEntry(tagBitsPerSample, typeShort, 16)
		putEntry(tagCompression, typeShort, 1)
		putEntry(tagPhotometric, typeShort, 1)
		putEntry(tagStripOffsets, typeLong, uint32(dataOff))
		putEntry(tagRowsPerStrip, typeLong, uint32(w.height))
		putEntry(tagStripByteCounts, typeLong, uint32(frameBytes))

		next := uint32(0)
		if i < len(w.frames)-1 {
			next = uint32(ifdStart + (i+1)*ifdSize)
		}
		le.PutUint32(buf[at:], next)
	}

	return os.WriteFile(w.path, buf, 0o644)
}
