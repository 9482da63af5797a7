package fitting

import "fmt"

// ShapeMismatchError reports disagreeing image and calibration
// dimensions. Fatal: the caller must not proceed with the fit.
type ShapeMismatchError struct {
	ImageWidth, ImageHeight int
	OtherWidth, OtherHeight int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("fitting: image shape %dx%d does not match %dx%d",
		e.ImageWidth, e.ImageHeight, e.OtherWidth, e.OtherHeight)
}

// UseAfterDisposeError reports an operation on a closed engine.
// This is a programming error, not a recoverable condition.
type UseAfterDisposeError struct {
	Op string
}

func (e *UseAfterDisposeError) Error() string {
	return fmt.Sprintf("fitting: %s called on closed engine", e.Op)
}
