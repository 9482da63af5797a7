// zcalibrate fits per-axis defocus calibration curves from a
// localization store and a per-frame z-offset file, then prints the
// parameter block used by the z fitting model.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Craven1701/storm-analysis/pkg/locs"
	"github.com/Craven1701/storm-analysis/pkg/zcal"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("zcalibrate", flag.ContinueOnError)
	locsPath := fs.String("locs", "", "localization store from a daofit run")
	zOffsetPath := fs.String("zoffset", "", "text file of per-frame (valid flag, z offset in microns) pairs")
	fitOrder := fs.Int("fitorder", 2, "number of additional correction terms (A,B,C,D) in [0,4]")
	plotPath := fs.String("plot", "", "save a width-vs-z figure of the fit (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *locsPath == "" || *zOffsetPath == "" {
		return fmt.Errorf("usage: zcalibrate -locs <locs.csv> -zoffset <offsets.txt> [-fitorder N] [-plot <png>]")
	}

	store, err := locs.Open(*locsPath)
	if err != nil {
		return err
	}
	wx, wy, z, err := zcal.LoadTrainingData(store, *zOffsetPath)
	if err != nil {
		return err
	}
	fmt.Printf("Calibration samples: %d (of %d localizations)\n", len(z), store.NumLocalizations())

	wxParams, wyParams, err := zcal.FitDefocusCurves(wx, wy, z, *fitOrder, nil)
	if err != nil {
		return err
	}

	if *plotPath != "" {
		if err := plotFit(*plotPath, wx, wy, z, wxParams, wyParams); err != nil {
			return err
		}
		fmt.Printf("Fit figure: %s\n", *plotPath)
	}

	fmt.Println()
	return zcal.WriteXML(os.Stdout,
		zcal.ConvertUnits(wxParams, store.PixelSize()),
		zcal.ConvertUnits(wyParams, store.PixelSize()))
}

// plotFit draws the width samples for both axes and the fitted curves
// over the usual calibration depth range.
func plotFit(path string, wx, wy, z, wxParams, wyParams []float64) error {
	p := plot.New()
	p.X.Label.Text = "microns"
	p.Y.Label.Text = "pixels"

	wxPts := make(plotter.XYs, len(z))
	wyPts := make(plotter.XYs, len(z))
	for i := range z {
		wxPts[i] = plotter.XY{X: z[i], Y: wx[i]}
		wyPts[i] = plotter.XY{X: z[i], Y: wy[i]}
	}
	wxScatter, err := plotter.NewScatter(wxPts)
	if err != nil {
		return err
	}
	wxScatter.Color = color.RGBA{R: 255, A: 255}
	wyScatter, err := plotter.NewScatter(wyPts)
	if err != nil {
		return err
	}
	wyScatter.Color = color.RGBA{G: 160, A: 255}

	const zStep = 0.01
	var wxFit, wyFit plotter.XYs
	for zi := -0.6; zi <= 0.601; zi += zStep {
		wxFit = append(wxFit, plotter.XY{X: zi, Y: zcal.CurveValue(wxParams, zi)})
		wyFit = append(wyFit, plotter.XY{X: zi, Y: zcal.CurveValue(wyParams, zi)})
	}
	wxLine, err := plotter.NewLine(wxFit)
	if err != nil {
		return err
	}
	wyLine, err := plotter.NewLine(wyFit)
	if err != nil {
		return err
	}

	p.Add(wxScatter, wyScatter, wxLine, wyLine)
	p.Legend.Add("Wx", wxScatter)
	p.Legend.Add("Wy", wyScatter)
	p.Legend.Top = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
