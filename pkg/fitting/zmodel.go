package fitting

import "math"

// WidthCurve holds defocus curve parameters [w0, c, d, A, B, C, D].
// The first three are required; up to four higher-order correction
// coefficients may follow. Shorter slices behave as if padded with
// zeros.
type WidthCurve []float64

// widthTerm evaluates 1 + X^2 + A*X^3 + B*X^4 + C*X^5 + D*X^6 and its
// derivative with respect to X for X = (z-c)/d.
func (wc WidthCurve) widthTerm(z float64) (val, dval float64) {
	x := (z - wc[1]) / wc[2]
	val = 1.0 + x*x
	dval = 2.0 * x
	xp := x * x
	for i := 3; i < len(wc); i++ {
		prev := xp
		xp *= x
		val += wc[i] * xp
		dval += float64(i) * wc[i] * prev
	}
	return val, dval
}

// Sigma returns the Gaussian sigma (half width) at depth z. Stored
// curve widths are full-width measures, hence the 0.5 factor.
func (wc WidthCurve) Sigma(z float64) float64 {
	val, _ := wc.widthTerm(z)
	return 0.5 * wc[0] * math.Sqrt(val)
}

// SigmaDz returns the sigma at depth z together with its derivative
// d(sigma)/dz, used by the Z variant's chain rule.
func (wc WidthCurve) SigmaDz(z float64) (sigma, dsigma float64) {
	val, dval := wc.widthTerm(z)
	s := math.Sqrt(val)
	sigma = 0.5 * wc[0] * s
	dsigma = 0.25 * wc[0] * dval / (s * wc[2])
	return sigma, dsigma
}

// zModel binds the per-axis defocus curves and the valid z range for
// the ZAstigmatism variant.
type zModel struct {
	wx, wy     WidthCurve
	minZ, maxZ float64
}

func (zm *zModel) clampZ(z float64) float64 {
	if z < zm.minZ {
		return zm.minZ
	}
	if z > zm.maxZ {
		return zm.maxZ
	}
	return z
}
