// Package config loads analysis parameters from YAML and provides the
// defaults used when no file is given.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parameters is the analysis configuration for a fitting run.
type Parameters struct {
	Fitting struct {
		// Model selects the fitting variant: 2dfixed, 2d, 3d or z.
		Model string `yaml:"model"`

		// Threshold is the peak finding intensity threshold above
		// background, in camera counts.
		Threshold float64 `yaml:"threshold"`

		// Sigma is the seed peak width in pixels.
		Sigma float64 `yaml:"sigma"`

		// FindMaxRadius is the local maximum search radius in pixels.
		FindMaxRadius int `yaml:"findMaxRadius"`

		// Margin keeps seeds away from the frame edge, in pixels.
		Margin int `yaml:"margin"`

		// MaxIterations bounds the convergence loop per frame.
		MaxIterations int `yaml:"maxIterations"`

		// Tolerance is the kernel convergence tolerance.
		Tolerance float64 `yaml:"tolerance"`

		// MinHeight and MinWidth gate the good-peak filter.
		MinHeight float64 `yaml:"minHeight"`
		MinWidth  float64 `yaml:"minWidth"`

		// PixelSize is the camera pixel size in nanometers, recorded
		// in the localization store.
		PixelSize float64 `yaml:"pixelSize"`
	} `yaml:"fitting"`

	Z struct {
		// MinZ and MaxZ bound the fitted z positions, in microns.
		MinZ float64 `yaml:"minZ"`
		MaxZ float64 `yaml:"maxZ"`

		// WxParams and WyParams are defocus curve parameters
		// [w0, c, d, A, B, C, D] from a zcalibrate run, required for
		// the z model.
		WxParams []float64 `yaml:"wxParams"`
		WyParams []float64 `yaml:"wyParams"`
	} `yaml:"z"`
}

// DefaultParameters returns the standard STORM analysis settings.
func DefaultParameters() *Parameters {
	p := &Parameters{}
	p.Fitting.Model = "2d"
	p.Fitting.Threshold = 8.0
	p.Fitting.Sigma = 1.5
	p.Fitting.FindMaxRadius = 5
	p.Fitting.Margin = 10
	p.Fitting.MaxIterations = 200
	p.Fitting.Tolerance = 1.0e-6
	p.Fitting.MinHeight = 0.0
	p.Fitting.MinWidth = 0.0
	p.Fitting.PixelSize = 160.0
	p.Z.MinZ = -0.5
	p.Z.MaxZ = 0.5
	return p
}

// LoadParameters reads a YAML parameter file over the defaults.
func LoadParameters(path string) (*Parameters, error) {
	p := DefaultParameters()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return p, nil
}

// Save writes the parameters back out as YAML.
func (p *Parameters) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("config: encoding parameters: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
