package normalize

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/histogram"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
)

// ErrUnthresholdable is returned when a section's histogram has a single
// populated bin, so no split leaves both classes non-empty.
var ErrUnthresholdable = errors.New("section has no valid Otsu split")

// OtsuThreshold returns the bin i that maximizes the between-class variance
// p0*p1*(m0-m1)² when bins below i form class zero and bins at or above i
// form class one. Ties go to the larger i.
func OtsuThreshold(hist []int) (int, error) {
	var total, weighted int
	for j, n := range hist {
		total += n
		weighted += j * n
	}

	var (
		best    int
		bestVar float64
		found   bool

		// Pixel count and weighted sum of class zero.
		p0, s0 int
	)
	for i := range hist {
		p1 := total - p0
		if p0 > 0 && p1 > 0 {
			m0 := float64(s0) / float64(p0)
			m1 := float64(weighted-s0) / float64(p1)
			v := float64(p0) * float64(p1) * (m0 - m1) * (m0 - m1)
			if v >= bestVar {
				best, bestVar, found = i, v, true
			}
		}
		p0 += hist[i]
		s0 += i * hist[i]
	}

	if !found {
		return 0, ErrUnthresholdable
	}
	return best, nil
}

// Thresholds is the per-section Otsu result for one raster.
type Thresholds struct {
	// Values holds the threshold of section (sx, sy) at Values[sx][sy].
	Values [][]int
	// WhiteFraction is the share of all pixels brighter than their
	// section's threshold.
	WhiteFraction float64
}

// SectionThresholds runs Otsu's method independently on each of the n×n
// sections of gray. A section without a valid split fails the whole raster
// with a degenerate error wrapping ErrUnthresholdable.
func SectionThresholds(gray *image.Gray, n int) (*Thresholds, error) {
	if n < 1 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("section count must be >= 1 (got %d)", n), nil)
	}
	bounds := gray.Bounds()
	if bounds.Dx()*bounds.Dy() == 0 {
		return nil, apperrors.NewInputError("raster has zero area", nil)
	}

	res := &Thresholds{Values: make([][]int, n)}
	white := 0
	for sx := 0; sx < n; sx++ {
		res.Values[sx] = make([]int, n)
		for sy := 0; sy < n; sy++ {
			rect := sectionRect(bounds, n, sx, sy)
			hist := histogram.NewRGBAHistogram(gray.SubImage(rect))

			t, err := OtsuThreshold(hist.R.Bins)
			if err != nil {
				return nil, apperrors.NewDegenerateError(
					fmt.Sprintf("section (%d,%d) cannot be thresholded", sx, sy), err)
			}
			res.Values[sx][sy] = t

			for v, count := range hist.R.Bins {
				if v > t {
					white += count
				}
			}
		}
	}

	res.WhiteFraction = float64(white) / float64(bounds.Dx()*bounds.Dy())
	return res, nil
}

// NormalizationPercentile converts a white fraction into the rank, among
// m×m sorted samples, that separates background from junction. The result
// lies in [1, m²].
func NormalizationPercentile(whiteFraction float64, m int) int {
	total := m * m
	p := int(math.Ceil((1 - whiteFraction) * float64(total)))
	return clampInt(p, 1, total)
}

// GeometricMeanPercentile aggregates per-image percentiles with the
// geometric mean rounded to the nearest integer, so one overexposed control
// image pulls the result less than it would an arithmetic mean.
func GeometricMeanPercentile(percentiles []int) (int, error) {
	if len(percentiles) == 0 {
		return 0, apperrors.NewValidationError("no percentiles to aggregate", nil)
	}
	xs := make([]float64, len(percentiles))
	for i, p := range percentiles {
		if p < 1 {
			return 0, apperrors.NewNumericError(fmt.Sprintf("percentile must be >= 1 (got %d)", p), nil)
		}
		xs[i] = float64(p)
	}
	return int(math.RoundToEven(stat.GeometricMean(xs, nil))), nil
}
