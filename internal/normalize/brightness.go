package normalize

import (
	"fmt"
	"image"
	"math"
	"sort"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
)

// Cutoffs is an N×N grid of per-section brightness cutoffs indexed [sx][sy].
// Section centres act as the interpolation nodes of a brightness map.
type Cutoffs [][]uint8

// N returns the number of sections per axis.
func (c Cutoffs) N() int {
	return len(c)
}

// SampleCutoffs takes an m×m grid of samples from each of the n×n sections
// of gray and keeps, per section, the sample of rank percentile (1-based)
// in ascending order.
func SampleCutoffs(gray *image.Gray, n, m, percentile int) (Cutoffs, error) {
	if n < 1 || m < 1 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("section and sample counts must be >= 1 (got %d, %d)", n, m), nil)
	}
	if percentile < 1 || percentile > m*m {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("percentile must be within [1,%d] (got %d)", m*m, percentile), nil)
	}
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*h == 0 {
		return nil, apperrors.NewInputError("raster has zero area", nil)
	}

	sw := float64(w) / float64(n)
	sh := float64(h) / float64(n)

	c := make(Cutoffs, n)
	samples := make([]int, 0, m*m)
	for sx := 0; sx < n; sx++ {
		c[sx] = make([]uint8, n)
		for sy := 0; sy < n; sy++ {
			samples = samples[:0]
			for kx := 0; kx < m; kx++ {
				px := samplePos(sw, sx, kx, m, w)
				for ky := 0; ky < m; ky++ {
					py := samplePos(sh, sy, ky, m, h)
					samples = append(samples, int(at(gray, px, py)))
				}
			}
			sort.Ints(samples)
			c[sx][sy] = uint8(samples[percentile-1])
		}
	}
	return c, nil
}

// samplePos returns the pixel offset of sample k of m inside section s.
func samplePos(extent float64, s, k, m, limit int) int {
	p := math.RoundToEven(extent * (float64(s) + (float64(k)+0.5)/float64(m)))
	return clampInt(int(p), 0, limit-1)
}

// Interpolate returns the unrounded brightness cutoff for pixel (x, y) given
// section width sw and height sh. Pixels within half a section of the outer
// border reuse the nearest row or column of nodes instead of extrapolating.
// The blend fractions are used as computed, not rounded to two decimals, so
// a rounded map value can sit one level away from a two-decimal blend.
func (c Cutoffs) Interpolate(x, y int, sw, sh float64) float64 {
	n := c.N()

	fx := float64(x)/sw - 0.5
	fy := float64(y)/sh - 0.5
	left := int(math.Floor(fx))
	top := int(math.Floor(fy))
	xf := fx - float64(left)
	yf := fy - float64(top)

	l, r := left, left+1
	if left < 0 {
		l = r
	} else if left >= n-1 {
		r = l
	}
	t, bt := top, top+1
	if top < 0 {
		t = bt
	} else if top >= n-1 {
		bt = t
	}

	upper := (1-xf)*float64(c[l][t]) + xf*float64(c[r][t])
	lower := (1-xf)*float64(c[l][bt]) + xf*float64(c[r][bt])
	return (1-yf)*upper + yf*lower
}

// BuildBrightnessMap interpolates c over a w×h raster. Each value is rounded
// to the nearest integer.
func BuildBrightnessMap(c Cutoffs, w, h int) (*image.Gray, error) {
	n := c.N()
	if n == 0 {
		return nil, apperrors.NewValidationError("empty cutoff grid", nil)
	}
	if w <= 0 || h <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid map size %dx%d", w, h), nil)
	}

	sw := float64(w) / float64(n)
	sh := float64(h) / float64(n)

	bmap := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := bmap.Pix[y*bmap.Stride:]
		for x := 0; x < w; x++ {
			row[x] = uint8(math.RoundToEven(c.Interpolate(x, y, sw, sh)))
		}
	}
	return bmap, nil
}
