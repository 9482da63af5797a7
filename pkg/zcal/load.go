package zcal

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Craven1701/storm-analysis/pkg/locs"
)

// frameOffset is one line of the z-offset file: whether the frame's
// localizations may be used for calibration, and the stage offset from
// the focal plane in microns.
type frameOffset struct {
	valid bool
	z     float64
}

// readZOffsets parses the two-column z-offset text file (valid flag
// 0/1, z offset in microns), one line per movie frame.
func readZOffsets(path string) ([]frameOffset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zcal: opening z offsets: %w", err)
	}
	defer f.Close()

	var offsets []frameOffset
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("zcal: z-offset line %q needs 2 columns", line)
		}
		flag, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("zcal: bad valid flag %q: %w", fields[0], err)
		}
		z, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("zcal: bad z offset %q: %w", fields[1], err)
		}
		offsets = append(offsets, frameOffset{valid: flag != 0, z: z})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return offsets, nil
}

// LoadTrainingData collects (width, z) calibration samples by joining
// the localization store against the per-frame z offsets, row index
// aligned to frame number. Frames flagged invalid are skipped, as are
// frames past the end of the offset table. Widths are full widths,
// twice the stored sigmas.
func LoadTrainingData(store *locs.Store, zOffsetPath string) (wx, wy, z []float64, err error) {
	offsets, err := readZOffsets(zOffsetPath)
	if err != nil {
		return nil, nil, nil, err
	}

	err = store.ForEachFrame(func(frame int, frameLocs []locs.Localization) error {
		if frame < 0 || frame >= len(offsets) || !offsets[frame].valid {
			return nil
		}
		for _, l := range frameLocs {
			wx = append(wx, 2.0*l.XSigma)
			wy = append(wy, 2.0*l.YSigma)
			z = append(z, offsets[frame].z)
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return wx, wy, z, nil
}
