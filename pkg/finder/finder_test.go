package finder

import (
	"math"
	"testing"

	"github.com/Craven1701/storm-analysis/pkg/fitting"
)

func syntheticFrame(width, height int, bg float64, centers [][2]float64, h, sigma float64) fitting.Image {
	img := fitting.NewImage(width, height)
	for i := range img.Data {
		img.Data[i] = bg
	}
	for _, c := range centers {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				dx := float64(x) - c[0]
				dy := float64(y) - c[1]
				img.Data[y*width+x] += h * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			}
		}
	}
	return img
}

func TestFindPeaksLocatesMaxima(t *testing.T) {
	centers := [][2]float64{{20, 25}, {45, 18}, {33, 42}}
	img := syntheticFrame(64, 64, 100, centers, 400, 1.5)

	peaks := FindPeaks(img, DefaultParams())
	if len(peaks) != len(centers) {
		t.Fatalf("found %d peaks, want %d", len(peaks), len(centers))
	}
	for _, c := range centers {
		best := math.Inf(1)
		for _, p := range peaks {
			d := math.Hypot(p.X-c[0], p.Y-c[1])
			if d < best {
				best = d
			}
		}
		if best > 1.5 {
			t.Errorf("no peak within 1.5 px of (%g, %g), nearest %.2f", c[0], c[1], best)
		}
	}
	for _, p := range peaks {
		if p.Height <= 0 {
			t.Errorf("seed height %.1f not above background", p.Height)
		}
		if p.WidthX != 1.5 || p.WidthY != 1.5 {
			t.Errorf("seed widths (%.2f, %.2f), want sigma 1.5", p.WidthX, p.WidthY)
		}
	}
}

func TestFindPeaksThreshold(t *testing.T) {
	img := syntheticFrame(64, 64, 100, [][2]float64{{30, 30}}, 5, 1.5)
	params := DefaultParams()
	params.Threshold = 50
	if peaks := FindPeaks(img, params); len(peaks) != 0 {
		t.Errorf("dim peak passed a threshold of 50: %d peaks", len(peaks))
	}
}

func TestFindPeaksRespectsMargin(t *testing.T) {
	img := syntheticFrame(64, 64, 100, [][2]float64{{4, 4}, {30, 30}}, 400, 1.5)
	peaks := FindPeaks(img, DefaultParams())
	if len(peaks) != 1 {
		t.Fatalf("found %d peaks, want only the interior one", len(peaks))
	}
	if math.Hypot(peaks[0].X-30, peaks[0].Y-30) > 1.5 {
		t.Errorf("kept peak at (%g, %g), want near (30, 30)", peaks[0].X, peaks[0].Y)
	}
}

func TestFindPeaksSuppressesPlateauTies(t *testing.T) {
	img := fitting.NewImage(40, 40)
	// A flat 2x2 plateau above background inside the margin.
	for _, i := range []int{20*40 + 20, 20*40 + 21, 21*40 + 20, 21*40 + 21} {
		img.Data[i] = 100
	}
	params := DefaultParams()
	params.Sigma = 0.5
	if peaks := FindPeaks(img, params); len(peaks) > 1 {
		t.Errorf("plateau yielded %d seeds, want at most 1", len(peaks))
	}
}

func TestGaussianSmoothPreservesConstant(t *testing.T) {
	width, height := 32, 24
	data := make([]float64, width*height)
	for i := range data {
		data[i] = 7.5
	}
	out := gaussianSmooth(data, width, height, 1.5)
	for i, v := range out {
		if math.Abs(v-7.5) > 1e-4 {
			t.Fatalf("pixel %d smoothed to %.6f, want 7.5", i, v)
		}
	}
}

func TestMedianOf(t *testing.T) {
	if got := medianOf([]float64{5, 1, 3}); got != 3 {
		t.Errorf("odd median %v, want 3", got)
	}
	if got := medianOf([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even median %v, want 2.5", got)
	}
}
