// daofit runs multi-peak Gaussian fitting over every frame of an SMLM
// movie and writes the accepted localizations to a CSV store.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"golang.org/x/image/tiff"

	"github.com/Craven1701/storm-analysis/pkg/config"
	"github.com/Craven1701/storm-analysis/pkg/finder"
	"github.com/Craven1701/storm-analysis/pkg/fitting"
	"github.com/Craven1701/storm-analysis/pkg/locs"
	"github.com/Craven1701/storm-analysis/pkg/movie"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("daofit", flag.ContinueOnError)
	moviePath := fs.String("movie", "", "input movie (.dax, .tif or .fits)")
	outPath := fs.String("out", "", "output localization store (.csv)")
	paramsPath := fs.String("params", "", "YAML analysis parameters (optional)")
	residualPath := fs.String("residual", "", "write the last frame's fit residual as a 16-bit TIFF (optional)")
	verbose := fs.Bool("verbose", false, "print per-frame fitting progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *moviePath == "" || *outPath == "" {
		return fmt.Errorf("usage: daofit -movie <input> -out <locs.csv> [-params <yaml>] [-residual <tiff>]")
	}

	params := config.DefaultParameters()
	if *paramsPath != "" {
		var err error
		if params, err = config.LoadParameters(*paramsPath); err != nil {
			return err
		}
	}
	variant, ok := fitting.ParseVariant(params.Fitting.Model)
	if !ok {
		return fmt.Errorf("unknown fitting model %q", params.Fitting.Model)
	}

	rd, err := movie.InferReader(*moviePath)
	if err != nil {
		return err
	}
	defer rd.Close()
	width, height, frames := rd.FilmSize()
	fmt.Printf("Movie: %s (%dx%d, %d frames, model %s)\n", *moviePath, width, height, frames, variant)

	lw, err := locs.NewWriter(*outPath, params.Fitting.PixelSize)
	if err != nil {
		return err
	}
	defer lw.Close()

	findParams := finder.Params{
		Threshold: params.Fitting.Threshold,
		Radius:    params.Fitting.FindMaxRadius,
		Margin:    params.Fitting.Margin,
		Sigma:     params.Fitting.Sigma,
	}

	var eng *fitting.Engine
	defer func() {
		if eng != nil {
			eng.Close()
		}
	}()

	start := time.Now()
	total := 0
	for i := 0; i < frames; i++ {
		frame, err := rd.LoadFrame(i)
		if err != nil {
			return err
		}
		img := fitting.FromUint16(frame, width, height)

		if eng == nil {
			eng, err = fitting.NewEngine(variant, img, nil, nil, params.Fitting.Tolerance)
			if err != nil {
				return err
			}
			eng.Verbose = *verbose
			if variant == fitting.ZAstigmatism {
				err = eng.SetZModel(params.Z.WxParams, params.Z.WyParams, params.Z.MinZ, params.Z.MaxZ)
				if err != nil {
					return err
				}
			}
		} else if err := eng.LoadImage(img); err != nil {
			return err
		}

		seeds := finder.FindPeaks(img, findParams)
		if len(seeds) == 0 {
			continue
		}
		fit, err := eng.Fit(seeds, params.Fitting.MaxIterations)
		if err != nil {
			return err
		}
		good := fitting.GoodPeaks(fit, params.Fitting.MinHeight, params.Fitting.MinWidth)
		if err := lw.AddFrame(i, good); err != nil {
			return err
		}
		total += len(good)
		if *verbose {
			fmt.Printf("frame %d: %d seeds, %d accepted\n", i, len(seeds), len(good))
		}
	}
	elapsed := time.Since(start)

	if *residualPath != "" && eng != nil {
		res, err := eng.Residual()
		if err != nil {
			return err
		}
		if err := writeResidual(*residualPath, res); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Printf("=== Fitting Results (%.1fs) ===\n", elapsed.Seconds())
	fmt.Printf("  Frames analyzed:  %d\n", frames)
	fmt.Printf("  Localizations:    %d\n", total)
	return nil
}

// writeResidual encodes the residual image as Gray16 TIFF, offset to
// the middle of the range so negative residuals stay visible.
func writeResidual(path string, res fitting.Image) error {
	img := image.NewGray16(image.Rect(0, 0, res.Width, res.Height))
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			v := res.Data[y*res.Width+x] + 32768.0
			if v < 0 {
				v = 0
			} else if v > 65535 {
				v = 65535
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Uncompressed})
}
