package fitting

// GoodPeaks returns the subset of peaks that fit well enough to keep:
// the fit did not end in an error status, the height exceeds minHeight,
// and both widths exceed half of minWidth. Stored widths are sigma-like
// half measures while the threshold is specified as a diameter, hence
// the 0.5 scaling. Input order is preserved; an empty input yields an
// empty output.
func GoodPeaks(peaks []Peak, minHeight, minWidth float64) []Peak {
	halfWidth := 0.5 * minWidth
	out := make([]Peak, 0, len(peaks))
	for _, p := range peaks {
		if p.Status == StatusError {
			continue
		}
		if p.Height <= minHeight {
			continue
		}
		if p.WidthX <= halfWidth || p.WidthY <= halfWidth {
			continue
		}
		out = append(out, p)
	}
	return out
}
