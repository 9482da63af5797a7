package fitting

import "testing"

func TestGoodPeaks(t *testing.T) {
	peaks := []Peak{
		{Height: 200, WidthX: 1.5, WidthY: 1.5, Status: StatusConverged},
		{Height: 200, WidthX: 1.5, WidthY: 1.5, Status: StatusError, Error: FitNegativeHeight},
		{Height: 40, WidthX: 1.5, WidthY: 1.5, Status: StatusConverged},
		{Height: 200, WidthX: 0.4, WidthY: 1.5, Status: StatusConverged},
		{Height: 200, WidthX: 1.5, WidthY: 0.4, Status: StatusRunning},
		{Height: 300, WidthX: 1.2, WidthY: 1.3, Status: StatusRunning},
	}

	kept := GoodPeaks(peaks, 50, 1.0)
	if len(kept) != 2 {
		t.Fatalf("kept %d peaks, want 2", len(kept))
	}
	// Order preserved: converged bright peak first, then the running one.
	if kept[0].Height != 200 || kept[0].Status != StatusConverged {
		t.Errorf("unexpected first kept peak: %+v", kept[0])
	}
	if kept[1].Height != 300 || kept[1].Status != StatusRunning {
		t.Errorf("unexpected second kept peak: %+v", kept[1])
	}
}

func TestGoodPeaksWidthThresholdIsHalf(t *testing.T) {
	// Widths are compared against half the minimum width.
	peaks := []Peak{{Height: 100, WidthX: 0.6, WidthY: 0.6, Status: StatusConverged}}
	if kept := GoodPeaks(peaks, 10, 1.0); len(kept) != 1 {
		t.Errorf("width 0.6 rejected at minWidth 1.0, want kept (cutoff 0.5)")
	}
	if kept := GoodPeaks(peaks, 10, 1.5); len(kept) != 0 {
		t.Errorf("width 0.6 kept at minWidth 1.5, want rejected (cutoff 0.75)")
	}
}

func TestGoodPeaksEmpty(t *testing.T) {
	if kept := GoodPeaks(nil, 0, 0); len(kept) != 0 {
		t.Errorf("non-empty result from nil input: %v", kept)
	}
}
