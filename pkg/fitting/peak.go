package fitting

// Status describes where a peak is in its fitting lifecycle.
type Status int

const (
	StatusRunning Status = iota
	StatusConverged
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusConverged:
		return "converged"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FitError identifies why the kernel gave up on a peak.
type FitError int

const (
	FitOK FitError = iota
	FitNegativeHeight
	FitNegativeWidth
	FitOutOfBounds
	FitSingular
	FitNonFinite
)

func (e FitError) String() string {
	switch e {
	case FitOK:
		return "ok"
	case FitNegativeHeight:
		return "negative height"
	case FitNegativeWidth:
		return "negative width"
	case FitOutOfBounds:
		return "out of bounds"
	case FitSingular:
		return "singular system"
	case FitNonFinite:
		return "non-finite parameters"
	default:
		return "unknown"
	}
}

// Peak is a single emitter candidate. Positions and widths are in pixels,
// Z is in the depth units of the bound defocus curves (microns internally).
type Peak struct {
	Height     float64
	X          float64
	WidthX     float64
	Y          float64
	WidthY     float64
	Background float64
	Z          float64
	Status     Status
	Error      FitError
}

// Column order of the fixed-width peak row format at the kernel boundary.
const (
	ColHeight = iota
	ColX
	ColWidthX
	ColY
	ColWidthY
	ColBackground
	ColZ
	ColStatus
	ColError
	NumCols
)

// Row flattens a peak into the kernel boundary row layout.
func (p Peak) Row() [NumCols]float64 {
	return [NumCols]float64{
		p.Height, p.X, p.WidthX, p.Y, p.WidthY,
		p.Background, p.Z, float64(p.Status), float64(p.Error),
	}
}

// PeakFromRow rebuilds a peak from a boundary row. The slice must hold
// at least NumCols values.
func PeakFromRow(row []float64) Peak {
	return Peak{
		Height:     row[ColHeight],
		X:          row[ColX],
		WidthX:     row[ColWidthX],
		Y:          row[ColY],
		WidthY:     row[ColWidthY],
		Background: row[ColBackground],
		Z:          row[ColZ],
		Status:     Status(row[ColStatus]),
		Error:      FitError(row[ColError]),
	}
}

// Image is a single analysis frame plus its dimensions. Data is stored
// row major, Data[y*Width+x].
type Image struct {
	Data   []float64
	Width  int
	Height int
}

// NewImage allocates a zeroed frame.
func NewImage(width, height int) Image {
	return Image{Data: make([]float64, width*height), Width: width, Height: height}
}

// FromUint16 converts a raw movie frame into a fitting image.
func FromUint16(data []uint16, width, height int) Image {
	img := NewImage(width, height)
	for i, v := range data {
		img.Data[i] = float64(v)
	}
	return img
}
