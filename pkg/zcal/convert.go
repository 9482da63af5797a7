package zcal

import (
	"fmt"
	"io"
)

// paramLen is the coefficient count the analysis pipeline expects per
// axis: w0, c, d, A, B, C, D.
const paramLen = 7

var paramSuffixes = [paramLen]string{"_wo", "_c", "_d", "A", "B", "C", "D"}

// ConvertUnits maps fit parameters from pixels/microns to the units
// used by the analysis pipeline (nanometers for w0, via the pixel size
// in nm, and 1e3 scaling on the depth center and scale), zero-padding
// the coefficient list to the expected length. It returns a fresh
// slice and leaves the input untouched, so the conversion always
// happens exactly once, at the serialization boundary.
func ConvertUnits(params []float64, pixelSize float64) []float64 {
	out := make([]float64, paramLen)
	copy(out, params)
	out[0] *= pixelSize
	out[1] *= 1.0e3
	out[2] *= 1.0e3
	return out
}

// WriteXML writes the calibration parameter block in the XML layout
// consumed by the analysis pipeline, one element per (axis,
// coefficient) pair, values to three decimals. Both parameter slices
// must already be unit-converted.
func WriteXML(w io.Writer, wxParams, wyParams []float64) error {
	if len(wxParams) != paramLen || len(wyParams) != paramLen {
		return fmt.Errorf("zcal: expected %d converted parameters per axis, got %d and %d",
			paramLen, len(wxParams), len(wyParams))
	}
	if _, err := fmt.Fprintln(w, "<xml>"); err != nil {
		return err
	}
	for i, axis := range []string{"wx", "wy"} {
		params := wxParams
		if i == 1 {
			params = wyParams
		}
		for j, suffix := range paramSuffixes {
			if _, err := fmt.Fprintf(w, "   <%s%s>%0.3f</%s%s>\n", axis, suffix, params[j], axis, suffix); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "</xml>")
	return err
}
