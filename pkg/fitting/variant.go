package fitting

// Variant selects the fitting strategy for an engine instance. It is
// fixed for the engine's lifetime; only the kernel iteration entry
// point invoked by IterateOnce differs between variants.
type Variant int

const (
	// FixedWidth2D never updates widths; they stay at the seed value.
	FixedWidth2D Variant = iota
	// FreeWidth2D fits a single width shared between x and y.
	FreeWidth2D
	// Independent3D fits width_x and width_y independently.
	Independent3D
	// ZAstigmatism derives widths from a fitted z position through the
	// bound defocus curves; z itself is a free parameter.
	ZAstigmatism
)

func (v Variant) String() string {
	switch v {
	case FixedWidth2D:
		return "2dfixed"
	case FreeWidth2D:
		return "2d"
	case Independent3D:
		return "3d"
	case ZAstigmatism:
		return "z"
	default:
		return "unknown"
	}
}

// ParseVariant maps the analysis parameter model names used by the
// configuration file to a Variant.
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "2dfixed":
		return FixedWidth2D, true
	case "2d":
		return FreeWidth2D, true
	case "3d":
		return Independent3D, true
	case "z":
		return ZAstigmatism, true
	}
	return 0, false
}
