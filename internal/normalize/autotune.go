package normalize

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
)

const (
	// MinAutoBlur and MaxAutoBlur bound the estimated blur radius.
	MinAutoBlur = 1
	MaxAutoBlur = imaging.MaxBlurRadius

	// MaxNoiseMargin bounds the estimated noise margin.
	MaxNoiseMargin = 0.5

	// hysteresis is the relative change needed to confirm a turn.
	hysteresis = 0.05
)

// centralProfiles returns the brightness down the central column and along
// the central row.
func centralProfiles(g *image.Gray) (col, row []uint8) {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	cx := clampInt(int(math.RoundToEven(float64(w)/2)), 0, w-1)
	cy := clampInt(int(math.RoundToEven(float64(h)/2)), 0, h-1)

	col = make([]uint8, h)
	for y := range col {
		col[y] = at(g, cx, y)
	}
	row = make([]uint8, w)
	for x := range row {
		row[x] = at(g, x, cy)
	}
	return col, row
}

// DifferenceIQR returns the interquartile range of the first differences of
// brightness down the central column and along the central row of the
// unblurred raster. Sharp, noisy images have a wide spread.
func DifferenceIQR(g *image.Gray) (float64, error) {
	col, row := centralProfiles(g)
	diffs := make([]float64, 0, len(col)+len(row))
	for _, profile := range [][]uint8{col, row} {
		for i := 1; i < len(profile); i++ {
			diffs = append(diffs, float64(profile[i])-float64(profile[i-1]))
		}
	}
	if len(diffs) == 0 {
		return 0, apperrors.NewDegenerateError("raster too small to estimate blur", nil)
	}

	sort.Float64s(diffs)
	return sortedAt(diffs, 0.75) - sortedAt(diffs, 0.25), nil
}

// sortedAt returns the element of the ascending slice xs at index
// round(q*n), half to even, capped at the last element. For an even count
// the median is the upper of the two middle values.
func sortedAt(xs []float64, q float64) float64 {
	i := int(math.RoundToEven(q * float64(len(xs))))
	return xs[min(i, len(xs)-1)]
}

// BlurRadiusFromIQR maps the difference IQR averaged over the calibration
// images to a blur radius in [MinAutoBlur, MaxAutoBlur]. cellEstimate is the
// expected number of cells along one axis.
func BlurRadiusFromIQR(avgIQR, cellEstimate float64) (int, error) {
	if cellEstimate <= 0 {
		return 0, apperrors.NewValidationError(
			fmt.Sprintf("cell estimate must be > 0 (got %g)", cellEstimate), nil)
	}
	r := int(math.RoundToEven(25 * avgIQR / math.Pow(cellEstimate, 2.5)))
	return clampInt(r, MinAutoBlur, MaxAutoBlur), nil
}

// OscillationRatios walks profile tracking alternating local maxima and
// minima and returns max/min - 1 for every confirmed turn. A fall below 95%
// of the running maximum starts a descent; a rise above 105% of the running
// minimum starts an ascent. Minima are clamped to at least 1 so a black
// trough never divides by zero.
func OscillationRatios(profile []uint8) []float64 {
	var (
		ratios     []float64
		localMin   = -1.0
		localMax   = 0.0
		increasing = true
	)
	for i := 1; i < len(profile); i++ {
		v := float64(profile[i])
		if increasing {
			if v < (1-hysteresis)*localMax {
				increasing = false
				if localMin != -1 {
					ratios = append(ratios, localMax/localMin-1)
				}
				localMin = math.Max(v, 1)
			} else {
				localMax = v
			}
		} else {
			if v > (1+hysteresis)*localMin {
				increasing = true
				ratios = append(ratios, localMax/localMin-1)
				localMax = v
			} else {
				localMin = math.Max(v, 1)
			}
		}
	}
	return ratios
}

// OscillationMedian returns the median turn ratio of the central column and
// row of a blurred raster, or 0 when the profile never turns.
func OscillationMedian(g *image.Gray) float64 {
	col, row := centralProfiles(g)
	ratios := append(OscillationRatios(col), OscillationRatios(row)...)
	if len(ratios) == 0 {
		return 0
	}
	sort.Float64s(ratios)
	return sortedAt(ratios, 0.5)
}

// NoiseMarginFromRatios maps the per-image median ratios averaged over the
// calibration images to a noise margin: a tenth of the average, snapped to a
// multiple of 0.05 and clamped to [0, MaxNoiseMargin].
func NoiseMarginFromRatios(avg float64) float64 {
	snapped := round2(math.RoundToEven(avg/10/hysteresis) * hysteresis)
	return math.Max(math.Min(snapped, MaxNoiseMargin), 0)
}

// Mean averages per-image statistics. An empty slice has mean 0.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// round2 rounds to two decimal places on the decimal representation.
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
