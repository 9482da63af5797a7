// Package finder seeds the fitting engine: it locates local intensity
// maxima above a threshold in a lightly smoothed frame and turns them
// into initial peak guesses. The smoothing backend is selected at
// build time (OpenCV or pure Go).
package finder

import (
	"math"
	"sort"

	"github.com/Craven1701/storm-analysis/pkg/fitting"
)

// Params controls maxima detection.
type Params struct {
	// Threshold is the minimum smoothed intensity above the estimated
	// background for a candidate maximum.
	Threshold float64
	// Radius is the neighborhood half-size a maximum must dominate.
	Radius int
	// Margin keeps candidates away from the frame edge, where the
	// fitting ROI would be clipped.
	Margin int
	// Sigma seeds the peak widths and sets the smoothing scale.
	Sigma float64
}

// DefaultParams mirror the usual analysis settings for STORM movies.
func DefaultParams() Params {
	return Params{Threshold: 8.0, Radius: 5, Margin: 10, Sigma: 1.5}
}

// FindPeaks returns seed peaks for every local maximum of the smoothed
// frame that exceeds background + threshold, is at least margin pixels
// from the edge, and dominates its radius neighborhood. A location
// that ties an already accepted maximum is suppressed, so plateaus
// yield one seed.
func FindPeaks(img fitting.Image, p Params) []fitting.Peak {
	smoothed := gaussianSmooth(img.Data, img.Width, img.Height, p.Sigma)
	bg := medianOf(smoothed)
	cutoff := bg + p.Threshold

	taken := make([]bool, len(smoothed))
	var peaks []fitting.Peak
	for y := p.Margin; y < img.Height-p.Margin; y++ {
		for x := p.Margin; x < img.Width-p.Margin; x++ {
			i := y*img.Width + x
			cur := smoothed[i]
			if cur <= cutoff || taken[i] {
				continue
			}
			if !isLocalMaximum(smoothed, img.Width, img.Height, x, y, p.Radius, cur) {
				continue
			}
			markNeighborhood(taken, img.Width, img.Height, x, y, p.Radius)
			peaks = append(peaks, fitting.Peak{
				Height:     cur - bg,
				X:          float64(x),
				Y:          float64(y),
				WidthX:     p.Sigma,
				WidthY:     p.Sigma,
				Background: bg,
			})
		}
	}
	return peaks
}

func isLocalMaximum(data []float64, width, height, cx, cy, radius int, cur float64) bool {
	y0, y1 := clip(cy-radius, height), clip(cy+radius, height)
	x0, x1 := clip(cx-radius, width), clip(cx+radius, width)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if x == cx && y == cy {
				continue
			}
			if data[y*width+x] > cur {
				return false
			}
		}
	}
	return true
}

func markNeighborhood(taken []bool, width, height, cx, cy, radius int) {
	y0, y1 := clip(cy-radius, height), clip(cy+radius, height)
	x0, x1 := clip(cx-radius, width), clip(cx+radius, width)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			taken[y*width+x] = true
		}
	}
}

func clip(v, size int) int {
	if v < 0 {
		return 0
	}
	if v > size-1 {
		return size - 1
	}
	return v
}

func medianOf(data []float64) float64 {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}

// kernelRadius is the half-size of the Gaussian smoothing kernel.
func kernelRadius(sigma float64) int {
	r := int(math.Ceil(3.0 * sigma))
	if r < 1 {
		r = 1
	}
	return r
}
