//go:build !purego && !js

package finder

import (
	"image"

	"gocv.io/x/gocv"
)

// gaussianSmooth blurs the frame with OpenCV. The frame is copied into
// a CV32F mat, filtered with border reflection, and copied back out.
func gaussianSmooth(data []float64, width, height int, sigma float64) []float64 {
	src := gocv.NewMatWithSize(height, width, gocv.MatTypeCV32F)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	raw, _ := src.DataPtrFloat32()
	for i, v := range data {
		raw[i] = float32(v)
	}

	k := 2*kernelRadius(sigma) + 1
	gocv.GaussianBlur(src, &dst, image.Pt(k, k), sigma, sigma, gocv.BorderReflect)

	out := make([]float64, len(data))
	flat, _ := dst.DataPtrFloat32()
	for i, v := range flat {
		out[i] = float64(v)
	}
	return out
}
