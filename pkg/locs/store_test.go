package locs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Craven1701/storm-analysis/pkg/fitting"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locs.csv")

	w, err := NewWriter(path, 160.0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddFrame(0, []fitting.Peak{
		{Height: 512.5, X: 10.25, Y: 12.75, WidthX: 1.4, WidthY: 1.6, Background: 98, Z: -0.12},
	}); err != nil {
		t.Fatalf("AddFrame 0: %v", err)
	}
	// An empty frame writes no rows.
	if err := w.AddFrame(1, nil); err != nil {
		t.Fatalf("AddFrame 1: %v", err)
	}
	if err := w.AddFrame(2, []fitting.Peak{
		{Height: 300, X: 30, Y: 31, WidthX: 1.5, WidthY: 1.5, Background: 100},
		{Height: 280, X: 5, Y: 6, WidthX: 1.3, WidthY: 1.8, Background: 99, Z: 0.2},
	}); err != nil {
		t.Fatalf("AddFrame 2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.PixelSize(); got != 160.0 {
		t.Errorf("pixel size %v, want 160", got)
	}
	if got := s.NumLocalizations(); got != 3 {
		t.Errorf("%d localizations, want 3", got)
	}

	var visited []int
	err = s.ForEachFrame(func(frame int, frameLocs []Localization) error {
		visited = append(visited, frame)
		for _, l := range frameLocs {
			if l.Frame != frame {
				t.Errorf("localization frame %d under key %d", l.Frame, frame)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachFrame: %v", err)
	}
	if len(visited) != 2 || visited[0] != 0 || visited[1] != 2 {
		t.Errorf("visited frames %v, want [0 2]", visited)
	}

	// Values survive the text round trip exactly.
	err = s.ForEachFrame(func(frame int, frameLocs []Localization) error {
		if frame != 0 {
			return nil
		}
		l := frameLocs[0]
		want := Localization{Frame: 0, Height: 512.5, X: 10.25, Y: 12.75, XSigma: 1.4, YSigma: 1.6, Background: 98, Z: -0.12}
		if l != want {
			t.Errorf("frame 0 localization %+v, want %+v", l, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachFrame: %v", err)
	}
}

func TestOpenRejectsMissingHeader(t *testing.T) {
	// A data row where the header belongs must not be consumed silently.
	path := filepath.Join(t.TempDir(), "headerless.csv")
	doc := "pixel_size,160\n0,500,10,12,1.4,1.6,98,-0.12\n1,300,30,31,1.5,1.5,100,0\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected an error for a store without the column header")
	}
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not_locs.csv")
	if err := os.WriteFile(path, []byte("a,b,c\n1,2,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected an error for a file without the pixel_size preamble")
	}
}
