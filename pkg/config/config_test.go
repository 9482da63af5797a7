package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParametersOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	doc := `
fitting:
  model: z
  threshold: 12.5
  pixelSize: 100
z:
  minZ: -0.6
  maxZ: 0.6
  wxParams: [3.0, -0.2, 0.4]
  wyParams: [3.0, 0.2, 0.4]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadParameters(path)
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if p.Fitting.Model != "z" || p.Fitting.Threshold != 12.5 || p.Fitting.PixelSize != 100 {
		t.Errorf("overridden fields not applied: %+v", p.Fitting)
	}
	// Untouched fields keep their defaults.
	if p.Fitting.Sigma != 1.5 || p.Fitting.MaxIterations != 200 || p.Fitting.Margin != 10 {
		t.Errorf("defaults lost under overlay: %+v", p.Fitting)
	}
	if p.Z.MinZ != -0.6 || p.Z.MaxZ != 0.6 {
		t.Errorf("z range not applied: %+v", p.Z)
	}
	if len(p.Z.WxParams) != 3 || p.Z.WxParams[1] != -0.2 {
		t.Errorf("wxParams not parsed: %v", p.Z.WxParams)
	}
}

func TestLoadParametersMissingFile(t *testing.T) {
	if _, err := LoadParameters(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	p := DefaultParameters()
	p.Fitting.Model = "3d"
	p.Fitting.MinHeight = 50
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadParameters(path)
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if got.Fitting.Model != "3d" || got.Fitting.MinHeight != 50 {
		t.Errorf("round trip lost fields: %+v", got.Fitting)
	}
}
