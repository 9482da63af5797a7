//go:build purego || js

package finder

import "math"

// gaussianSmooth blurs the frame with a separable Gaussian kernel and
// reflected borders, matching the native backend closely enough that
// maxima land on the same pixels.
func gaussianSmooth(data []float64, width, height int, sigma float64) []float64 {
	radius := kernelRadius(sigma)
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float64, len(data))
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			acc := 0.0
			for i, k := range kernel {
				acc += k * data[row+reflect(x+i-radius, width)]
			}
			tmp[row+x] = acc
		}
	}

	out := make([]float64, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			acc := 0.0
			for i, k := range kernel {
				acc += k * tmp[reflect(y+i-radius, height)*width+x]
			}
			out[y*width+x] = acc
		}
	}
	return out
}

func reflect(i, size int) int {
	if i < 0 {
		return -i - 1
	}
	if i >= size {
		return 2*size - i - 1
	}
	return i
}
