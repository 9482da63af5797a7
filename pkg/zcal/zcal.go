// Package zcal fits per-axis defocus calibration curves for
// astigmatism-based 3D localization. Internal calculations are in
// pixels and microns; ConvertUnits maps the results to the units used
// at the persistence boundary.
package zcal

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
)

// DefaultGuess is the initial [w0, c, d] estimate when the caller
// supplies none.
var DefaultGuess = []float64{3.0, 0.3, 0.5}

// MaxAdditional bounds the higher-order correction coefficients
// (A, B, C, D) appended by the extended fit.
const MaxAdditional = 4

// DefocusFitDivergedError reports that the nonlinear solver failed to
// converge for one axis, after the sign-flip fallback for the
// zero-order stage. Order records which fit stage diverged.
type DefocusFitDivergedError struct {
	Axis  string
	Order int
	Err   error
}

func (e *DefocusFitDivergedError) Error() string {
	return fmt.Sprintf("zcal: defocus curve fitting failed for w%s (order %d)", e.Axis, e.Order)
}

func (e *DefocusFitDivergedError) Unwrap() error { return e.Err }

// CurveValue evaluates the defocus curve
//
//	w(z) = w0 * sqrt(1 + X^2 + A*X^3 + B*X^4 + C*X^5 + D*X^6)
//
// with X = (z-c)/d, for params [w0, c, d, A...]. Coefficients beyond
// the first three are optional.
func CurveValue(params []float64, z float64) float64 {
	x := (z - params[1]) / params[2]
	term := 1.0 + x*x
	xp := x * x
	for i := 3; i < len(params); i++ {
		xp *= x
		term += params[i] * xp
	}
	return params[0] * math.Sqrt(term)
}

// solveCurve is the underlying least-squares solver, replaceable in
// tests.
var solveCurve = lmSolve

func lmSolve(w, z, params []float64) ([]float64, error) {
	f := func(dst, guess []float64) {
		for i := range z {
			dst[i] = CurveValue(guess, z[i]) - w[i]
		}
	}
	jac := lm.NumJac{Func: f}
	prob := lm.LMProblem{
		Dim:        len(params),
		Size:       len(w),
		Func:       f,
		Jac:        jac.Jac,
		InitParams: params,
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}
	results, err := lm.LM(prob, &lm.Settings{Iterations: 100, ObjectiveTol: 1e-16})
	if err != nil {
		return nil, err
	}
	for _, v := range results.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("non-finite fit parameters")
		}
	}
	return results.X, nil
}

// singleFit runs one least-squares fit with nAdditional zero-seeded
// correction coefficients appended to the guess.
func singleFit(w, z, guess []float64, nAdditional int) ([]float64, error) {
	params := make([]float64, 0, len(guess)+nAdditional)
	params = append(params, guess...)
	for i := 0; i < nAdditional; i++ {
		params = append(params, 0.0)
	}
	return solveCurve(w, z, params)
}

// fitAxis is the two-stage procedure for one axis: a zero-order fit to
// bootstrap the estimate, retried once with the scale term negated if
// it diverges (the curve has an inherent sign ambiguity in d), then an
// extended fit reseeded from the zero-order result.
func fitAxis(axis string, w, z, guess []float64, nAdditional int) ([]float64, error) {
	zfit, err := singleFit(w, z, append([]float64(nil), guess...), 0)
	if err != nil {
		flipped := append([]float64(nil), guess...)
		flipped[2] = -flipped[2]
		zfit, err = singleFit(w, z, flipped, 0)
	}
	if err != nil {
		return nil, &DefocusFitDivergedError{Axis: axis, Order: 0, Err: err}
	}

	full, err := singleFit(w, z, zfit, nAdditional)
	if err != nil {
		return nil, &DefocusFitDivergedError{Axis: axis, Order: nAdditional, Err: err}
	}
	return full, nil
}

// FitDefocusCurves fits the width-vs-z curve for each axis
// independently over separately collected width samples. wx and wy are
// measured widths in pixels, z the matching depths in microns. guess
// may be nil for DefaultGuess. The returned parameter slices are
// [w0, c, d] plus nAdditional correction coefficients.
func FitDefocusCurves(wx, wy, z []float64, nAdditional int, guess []float64) (wxParams, wyParams []float64, err error) {
	if len(wx) != len(z) || len(wy) != len(z) {
		return nil, nil, fmt.Errorf("zcal: sample counts disagree: %d wx, %d wy, %d z", len(wx), len(wy), len(z))
	}
	if len(z) == 0 {
		return nil, nil, errors.New("zcal: no calibration samples")
	}
	if nAdditional < 0 || nAdditional > MaxAdditional {
		return nil, nil, fmt.Errorf("zcal: nAdditional must be in [0, %d], got %d", MaxAdditional, nAdditional)
	}
	if guess == nil {
		guess = DefaultGuess
	}
	if len(guess) != 3 {
		return nil, nil, fmt.Errorf("zcal: initial guess needs 3 parameters, got %d", len(guess))
	}

	wxParams, err = fitAxis("x", wx, z, guess, nAdditional)
	if err != nil {
		return nil, nil, err
	}
	wyParams, err = fitAxis("y", wy, z, guess, nAdditional)
	if err != nil {
		return nil, nil, err
	}
	return wxParams, wyParams, nil
}
