package fitting

import (
	"fmt"
)

// DefaultTolerance is the kernel convergence tolerance used when the
// caller passes zero.
const DefaultTolerance = 1.0e-6

// DefaultMaxIterations bounds the convergence loop when the caller
// passes zero.
const DefaultMaxIterations = 200

// Engine owns exclusive access to one kernel instance and drives it to
// convergence. Distinct engines are fully independent; within one
// engine all operations are strictly sequential. An engine is a scoped
// resource: Close must run on every exit path. Closing twice is a safe
// no-op; any other operation after Close fails with
// UseAfterDisposeError.
type Engine struct {
	kern    Kernel
	variant Variant
	width   int
	height  int
	zBound  bool
	closed  bool

	// Verbose prints iteration progress to stdout every 20 cycles.
	Verbose bool
}

// NewEngine creates an engine bound to the first frame. A nil
// noiseCal substitutes a zero-valued sCMOS calibration buffer matching
// the image shape; a mismatched one fails with ShapeMismatchError.
// A nil clamp uses DefaultClamp, zero tol uses DefaultTolerance.
func NewEngine(variant Variant, img Image, noiseCal *Image, clamp []float64, tol float64) (*Engine, error) {
	if len(img.Data) != img.Width*img.Height {
		return nil, fmt.Errorf("fitting: image buffer is %d values, want %dx%d",
			len(img.Data), img.Width, img.Height)
	}
	var variance []float64
	if noiseCal == nil {
		variance = make([]float64, img.Width*img.Height)
	} else {
		if noiseCal.Width != img.Width || noiseCal.Height != img.Height {
			return nil, &ShapeMismatchError{
				ImageWidth: img.Width, ImageHeight: img.Height,
				OtherWidth: noiseCal.Width, OtherHeight: noiseCal.Height,
			}
		}
		variance = noiseCal.Data
	}
	if tol == 0 {
		tol = DefaultTolerance
	}
	cv := DefaultClamp
	if clamp != nil {
		if len(clamp) != len(cv) {
			return nil, fmt.Errorf("fitting: clamp vector has %d values, want %d", len(clamp), len(cv))
		}
		copy(cv[:], clamp)
	}
	return &Engine{
		kern:    NewGaussianKernel(img, variance, cv, tol),
		variant: variant,
		width:   img.Width,
		height:  img.Height,
	}, nil
}

// Variant reports the model variant the engine was built with.
func (e *Engine) Variant() Variant { return e.variant }

// SetZModel binds the defocus curve parameters and valid z range.
// Required before any ZAstigmatism iteration.
func (e *Engine) SetZModel(wx, wy WidthCurve, minZ, maxZ float64) error {
	if e.closed {
		return &UseAfterDisposeError{Op: "SetZModel"}
	}
	if len(wx) < 3 || len(wy) < 3 {
		return fmt.Errorf("fitting: defocus curves need at least 3 parameters, got %d and %d", len(wx), len(wy))
	}
	e.kern.SetZModel(wx, wy, minZ, maxZ)
	e.zBound = true
	return nil
}

// LoadImage rebinds the engine to a new frame of the same shape. Clamp
// and z-model state carry over, so one engine can be reused across the
// frames of a movie.
func (e *Engine) LoadImage(img Image) error {
	if e.closed {
		return &UseAfterDisposeError{Op: "LoadImage"}
	}
	if img.Width != e.width || img.Height != e.height {
		return &ShapeMismatchError{
			ImageWidth: img.Width, ImageHeight: img.Height,
			OtherWidth: e.width, OtherHeight: e.height,
		}
	}
	e.kern.NewImage(img)
	return nil
}

// LoadPeaks (re)seeds the working peak population and resets per-peak
// convergence and error status.
func (e *Engine) LoadPeaks(peaks []Peak) error {
	if e.closed {
		return &UseAfterDisposeError{Op: "LoadPeaks"}
	}
	e.kern.NewPeaks(peaks)
	return nil
}

// IterateOnce advances every non-converged peak by exactly one
// optimization step of the active model variant.
func (e *Engine) IterateOnce() error {
	if e.closed {
		return &UseAfterDisposeError{Op: "IterateOnce"}
	}
	switch e.variant {
	case FixedWidth2D:
		e.kern.Iterate2DFixed()
	case FreeWidth2D:
		e.kern.Iterate2D()
	case Independent3D:
		e.kern.Iterate3D()
	case ZAstigmatism:
		if !e.zBound {
			return fmt.Errorf("fitting: z model not bound before ZAstigmatism iteration")
		}
		e.kern.IterateZ()
	default:
		return fmt.Errorf("fitting: unknown variant %d", e.variant)
	}
	return nil
}

// Unconverged returns the number of peaks still marked unconverged.
// Zero means done.
func (e *Engine) Unconverged() (int, error) {
	if e.closed {
		return 0, &UseAfterDisposeError{Op: "Unconverged"}
	}
	return e.kern.Unconverged(), nil
}

// Peaks returns the current peak records, converged and not.
func (e *Engine) Peaks() ([]Peak, error) {
	if e.closed {
		return nil, &UseAfterDisposeError{Op: "Peaks"}
	}
	return e.kern.Results(), nil
}

// Residual returns the image minus the current rendered model. It is a
// diagnostic; the convergence test does not use it.
func (e *Engine) Residual() (Image, error) {
	if e.closed {
		return Image{}, &UseAfterDisposeError{Op: "Residual"}
	}
	return e.kern.Residual(), nil
}

// Fit runs the convergence loop: load the peaks, iterate once
// unconditionally, then keep iterating while any peak is unconverged
// and the cycle count is under maxIterations (DefaultMaxIterations
// when zero). Exhausting the budget is not an error; peaks still
// running are returned as-is with their status flags for downstream
// filtering.
func (e *Engine) Fit(peaks []Peak, maxIterations int) ([]Peak, error) {
	if e.closed {
		return nil, &UseAfterDisposeError{Op: "Fit"}
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if err := e.LoadPeaks(peaks); err != nil {
		return nil, err
	}
	if err := e.IterateOnce(); err != nil {
		return nil, err
	}
	i := 0
	for e.kern.Unconverged() > 0 && i < maxIterations {
		if e.Verbose && i%20 == 0 {
			fmt.Println("iteration", i)
		}
		if err := e.IterateOnce(); err != nil {
			return nil, err
		}
		i++
	}
	if e.Verbose {
		if i == maxIterations {
			fmt.Println(" failed to converge in:", i, e.kern.Unconverged())
		} else {
			fmt.Println(" multi-fit converged in:", i, e.kern.Unconverged())
		}
	}
	return e.kern.Results(), nil
}

// Close releases the kernel instance. The first call wins; later calls
// are no-ops.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.kern.Cleanup()
	return nil
}
