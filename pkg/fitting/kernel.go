package fitting

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kernel is the numerical backend boundary. A kernel instance is bound
// at creation to one image shape, a noise calibration buffer, a clamp
// vector and a tolerance. Implementations are stateful and not safe
// for concurrent use; the engine serializes access.
type Kernel interface {
	// NewImage rebinds the kernel to a new frame of the bound shape
	// and discards the current peak population.
	NewImage(img Image)
	// NewPeaks replaces the working peak population and resets
	// per-peak convergence and error state.
	NewPeaks(peaks []Peak)
	// SetZModel binds the per-axis defocus curves and the valid z
	// range used by IterateZ.
	SetZModel(wx, wy WidthCurve, minZ, maxZ float64)

	// Model-specific iteration entry points. Each advances every
	// non-converged peak by exactly one optimization step.
	Iterate2DFixed()
	Iterate2D()
	Iterate3D()
	IterateZ()

	// Unconverged returns the number of peaks still marked running.
	Unconverged() int
	// Results returns the current peak table, converged or not.
	Results() []Peak
	// Residual returns the image minus the rendered model.
	Residual() Image
	// Cleanup releases any kernel resources.
	Cleanup()
}

// fitPeak carries per-peak solver state next to the public record.
type fitPeak struct {
	Peak
	clamp    [7]float64
	lastStep [7]float64
	chi2     float64

	// Rendered contribution currently added into the model, so the
	// exact same values can be subtracted back out.
	x0, y0, x1, y1 int
	rendered       []float64
	inModel        bool
}

// gaussKernel is the default numerical backend: an elliptical Gaussian
// model driven by clamped Gauss-Newton steps. Parameter updates are
// bounded by the per-peak clamp vector; a clamp halves whenever its
// parameter's raw update flips sign between iterations.
type gaussKernel struct {
	width, height int
	image         []float64
	variance      []float64
	model         []float64
	clamp         [7]float64
	tol           float64
	zm            *zModel
	peaks         []*fitPeak
}

// DefaultClamp is the initial per-iteration update scale for
// [height, x, width_x, y, width_y, background, z].
var DefaultClamp = [7]float64{1000.0, 1.0, 0.3, 1.0, 0.3, 100.0, 0.1}

// NewGaussianKernel creates the default backend. The caller has
// already validated that variance matches the image shape.
func NewGaussianKernel(img Image, variance []float64, clamp [7]float64, tol float64) Kernel {
	return &gaussKernel{
		width:    img.Width,
		height:   img.Height,
		image:    append([]float64(nil), img.Data...),
		variance: append([]float64(nil), variance...),
		model:    make([]float64, img.Width*img.Height),
		clamp:    clamp,
		tol:      tol,
	}
}

func (k *gaussKernel) NewImage(img Image) {
	copy(k.image, img.Data)
	for i := range k.model {
		k.model[i] = 0
	}
	k.peaks = nil
}

func (k *gaussKernel) SetZModel(wx, wy WidthCurve, minZ, maxZ float64) {
	k.zm = &zModel{wx: wx, wy: wy, minZ: minZ, maxZ: maxZ}
}

func (k *gaussKernel) NewPeaks(peaks []Peak) {
	for i := range k.model {
		k.model[i] = 0
	}
	k.peaks = make([]*fitPeak, len(peaks))
	for i, p := range peaks {
		fp := &fitPeak{Peak: p, clamp: k.clamp}
		fp.Status = StatusRunning
		fp.Error = FitOK
		if k.zm != nil {
			fp.Z = k.zm.clampZ(fp.Z)
			fp.WidthX = k.zm.wx.Sigma(fp.Z)
			fp.WidthY = k.zm.wy.Sigma(fp.Z)
		}
		// A malformed seed must never enter the shared model: a NaN
		// rendered there cannot be subtracted back out and would
		// poison every overlapping peak.
		if err := k.validate(fp); err != FitOK {
			fp.Status = StatusError
			fp.Error = err
		}
		k.peaks[i] = fp
	}
	for _, fp := range k.peaks {
		if fp.Status == StatusRunning {
			k.addToModel(fp)
		}
	}
	for _, fp := range k.peaks {
		if fp.Status == StatusRunning {
			fp.chi2 = k.peakError(fp)
		}
	}
}

func (k *gaussKernel) Iterate2DFixed() { k.iterate(FixedWidth2D) }
func (k *gaussKernel) Iterate2D()      { k.iterate(FreeWidth2D) }
func (k *gaussKernel) Iterate3D()      { k.iterate(Independent3D) }
func (k *gaussKernel) IterateZ()       { k.iterate(ZAstigmatism) }

func (k *gaussKernel) Unconverged() int {
	n := 0
	for _, fp := range k.peaks {
		if fp.Status == StatusRunning {
			n++
		}
	}
	return n
}

func (k *gaussKernel) Results() []Peak {
	out := make([]Peak, len(k.peaks))
	for i, fp := range k.peaks {
		out[i] = fp.Peak
	}
	return out
}

func (k *gaussKernel) Residual() Image {
	res := NewImage(k.width, k.height)
	for i := range res.Data {
		res.Data[i] = k.image[i] - k.model[i]
	}
	return res
}

func (k *gaussKernel) Cleanup() {
	k.image = nil
	k.variance = nil
	k.model = nil
	k.peaks = nil
}

// variantCols maps each variant to the clamp vector columns of its
// free parameters, in solver order.
func variantCols(v Variant) []int {
	switch v {
	case FixedWidth2D:
		return []int{ColHeight, ColX, ColY, ColBackground}
	case FreeWidth2D:
		return []int{ColHeight, ColX, ColY, ColWidthX, ColBackground}
	case Independent3D:
		return []int{ColHeight, ColX, ColY, ColWidthX, ColWidthY, ColBackground}
	case ZAstigmatism:
		return []int{ColHeight, ColX, ColY, ColZ, ColBackground}
	}
	return nil
}

func (k *gaussKernel) iterate(v Variant) {
	for _, fp := range k.peaks {
		if fp.Status != StatusRunning {
			continue
		}
		k.iteratePeak(fp, v)
	}
}

func (k *gaussKernel) iteratePeak(fp *fitPeak, v Variant) {
	cols := variantCols(v)
	n := len(cols)

	var dsx, dsy float64
	if v == ZAstigmatism {
		_, dsx = k.zm.wx.SigmaDz(fp.Z)
		_, dsy = k.zm.wy.SigmaDz(fp.Z)
	}

	jtj := mat.NewSymDense(n, nil)
	jtr := make([]float64, n)
	g := make([]float64, n)

	sx := fp.WidthX
	sy := fp.WidthY
	for y := fp.y0; y <= fp.y1; y++ {
		for x := fp.x0; x <= fp.x1; x++ {
			i := y*k.width + x
			dx := float64(x) - fp.X
			dy := float64(y) - fp.Y
			e := math.Exp(-(dx*dx/(2*sx*sx) + dy*dy/(2*sy*sy)))
			fg := fp.Height * e
			fit := k.model[i] + fp.Background
			resid := k.image[i] - fit
			weight := 1.0 / (k.variance[i] + math.Max(fit, 1.0))

			g[0] = e                   // height
			g[1] = fg * dx / (sx * sx) // x
			g[2] = fg * dy / (sy * sy) // y
			switch v {
			case FixedWidth2D:
				g[3] = 1.0
			case FreeWidth2D:
				g[3] = fg * (dx*dx + dy*dy) / (sx * sx * sx)
				g[4] = 1.0
			case Independent3D:
				g[3] = fg * dx * dx / (sx * sx * sx)
				g[4] = fg * dy * dy / (sy * sy * sy)
				g[5] = 1.0
			case ZAstigmatism:
				g[3] = fg * (dx*dx/(sx*sx*sx)*dsx + dy*dy/(sy*sy*sy)*dsy)
				g[4] = 1.0
			}

			for a := 0; a < n; a++ {
				jtr[a] += weight * g[a] * resid
				for b := a; b < n; b++ {
					jtj.SetSym(a, b, jtj.At(a, b)+weight*g[a]*g[b])
				}
			}
		}
	}

	deltas, ok := solveNormal(jtj, jtr)
	if !ok {
		k.failPeak(fp, FitSingular)
		return
	}

	k.removeFromModel(fp)
	k.applyDeltas(fp, v, cols, deltas)
	if err := k.validate(fp); err != FitOK {
		fp.Status = StatusError
		fp.Error = err
		return
	}
	if v == ZAstigmatism {
		fp.WidthX = k.zm.wx.Sigma(fp.Z)
		fp.WidthY = k.zm.wy.Sigma(fp.Z)
	}
	k.addToModel(fp)

	chi2 := k.peakError(fp)
	diff := math.Abs(chi2 - fp.chi2)
	if diff/math.Max(chi2, 1e-9) < k.tol {
		fp.Status = StatusConverged
	}
	fp.chi2 = chi2
}

func (k *gaussKernel) applyDeltas(fp *fitPeak, v Variant, cols []int, deltas []float64) {
	for j, c := range cols {
		delta := deltas[j]
		if delta*fp.lastStep[c] < 0 {
			fp.clamp[c] *= 0.5
		}
		fp.lastStep[c] = delta
		step := delta / (1.0 + math.Abs(delta)/fp.clamp[c])
		switch c {
		case ColHeight:
			fp.Height += step
		case ColX:
			fp.X += step
		case ColY:
			fp.Y += step
		case ColWidthX:
			fp.WidthX += step
			if v == FreeWidth2D {
				fp.WidthY = fp.WidthX
			}
		case ColWidthY:
			fp.WidthY += step
		case ColBackground:
			fp.Background += step
		case ColZ:
			fp.Z = k.zm.clampZ(fp.Z + step)
		}
	}
}

func (k *gaussKernel) validate(fp *fitPeak) FitError {
	for _, v := range []float64{fp.Height, fp.X, fp.Y, fp.WidthX, fp.WidthY, fp.Background, fp.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return FitNonFinite
		}
	}
	if fp.Height <= 0 {
		return FitNegativeHeight
	}
	if fp.WidthX <= 0 || fp.WidthY <= 0 {
		return FitNegativeWidth
	}
	if fp.X < 0 || fp.X > float64(k.width-1) || fp.Y < 0 || fp.Y > float64(k.height-1) {
		return FitOutOfBounds
	}
	return FitOK
}

func (k *gaussKernel) failPeak(fp *fitPeak, reason FitError) {
	k.removeFromModel(fp)
	fp.Status = StatusError
	fp.Error = reason
}

// roi returns the pixel bounds covered by a peak at its current
// parameters, four sigma out and clipped to the frame.
func (k *gaussKernel) roi(fp *fitPeak) (x0, y0, x1, y1 int) {
	s := math.Max(fp.WidthX, fp.WidthY)
	r := int(math.Ceil(4.0 * s))
	if r < 3 {
		r = 3
	}
	cx := int(math.Round(fp.X))
	cy := int(math.Round(fp.Y))
	x0, x1 = cx-r, cx+r
	y0, y1 = cy-r, cy+r
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > k.width-1 {
		x1 = k.width - 1
	}
	if y1 > k.height-1 {
		y1 = k.height - 1
	}
	return x0, y0, x1, y1
}

func (k *gaussKernel) addToModel(fp *fitPeak) {
	fp.x0, fp.y0, fp.x1, fp.y1 = k.roi(fp)
	nx := fp.x1 - fp.x0 + 1
	ny := fp.y1 - fp.y0 + 1
	if cap(fp.rendered) < nx*ny {
		fp.rendered = make([]float64, nx*ny)
	}
	fp.rendered = fp.rendered[:nx*ny]
	sx := fp.WidthX
	sy := fp.WidthY
	for y := fp.y0; y <= fp.y1; y++ {
		for x := fp.x0; x <= fp.x1; x++ {
			dx := float64(x) - fp.X
			dy := float64(y) - fp.Y
			v := fp.Height * math.Exp(-(dx*dx/(2*sx*sx) + dy*dy/(2*sy*sy)))
			fp.rendered[(y-fp.y0)*nx+(x-fp.x0)] = v
			k.model[y*k.width+x] += v
		}
	}
	fp.inModel = true
}

func (k *gaussKernel) removeFromModel(fp *fitPeak) {
	if !fp.inModel {
		return
	}
	nx := fp.x1 - fp.x0 + 1
	for y := fp.y0; y <= fp.y1; y++ {
		for x := fp.x0; x <= fp.x1; x++ {
			k.model[y*k.width+x] -= fp.rendered[(y-fp.y0)*nx+(x-fp.x0)]
		}
	}
	fp.inModel = false
}

// peakError is the weighted sum of squared residuals over the peak's
// current region of interest.
func (k *gaussKernel) peakError(fp *fitPeak) float64 {
	sum := 0.0
	for y := fp.y0; y <= fp.y1; y++ {
		for x := fp.x0; x <= fp.x1; x++ {
			i := y*k.width + x
			fit := k.model[i] + fp.Background
			r := k.image[i] - fit
			sum += r * r / (k.variance[i] + math.Max(fit, 1.0))
		}
	}
	return sum
}

// solveNormal solves the damped normal equations. On an
// ill-conditioned system the diagonal damping is increased a few
// times before giving up, in the same spirit as a Levenberg step.
func solveNormal(jtj *mat.SymDense, jtr []float64) ([]float64, bool) {
	n := len(jtr)
	a := mat.NewSymDense(n, nil)
	a.CopySym(jtj)
	b := mat.NewVecDense(n, append([]float64(nil), jtr...))

	damp := 0.0
	for try := 0; try < 6; try++ {
		if damp > 0 {
			for i := 0; i < n; i++ {
				a.SetSym(i, i, jtj.At(i, i)*(1.0+damp)+damp)
			}
		}
		var ch mat.Cholesky
		if ch.Factorize(a) {
			x := mat.NewVecDense(n, nil)
			if err := ch.SolveVecTo(x, b); err == nil {
				out := make([]float64, n)
				copy(out, x.RawVector().Data)
				return out, true
			}
		}
		if damp == 0 {
			damp = 1e-6
		} else {
			damp *= 100.0
		}
	}
	return nil, false
}
