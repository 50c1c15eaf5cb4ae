// Package score measures junction density on binarized rasters.
package score

import (
	"fmt"
	"image"
	"strconv"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
)

// IJOQ scans the given number of evenly spaced rows, and as many columns,
// across bin and counts foreground/background changes. A change adds 0.5/w on
// a row and 0.5/h on a column; the total is averaged over the 2*lines scans
// and rounded to 4 decimals. The result does not depend on image size.
func IJOQ(bin *image.Gray, lines int) (float64, error) {
	if lines < 1 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("line count must be >= 1 (got %d)", lines), nil)
	}
	b := bin.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*h == 0 {
		return 0, apperrors.NewInputError("raster has zero area", nil)
	}

	var total float64
	for i := 0; i < lines; i++ {
		y := imaging.ScanRow(h, lines, i)
		prev := bin.Pix[bin.PixOffset(b.Min.X, b.Min.Y+y)]
		for x := 1; x < w; x++ {
			cur := bin.Pix[bin.PixOffset(b.Min.X+x, b.Min.Y+y)]
			if cur != prev {
				total += 0.5 / float64(w)
			}
			prev = cur
		}
	}
	for i := 0; i < lines; i++ {
		x := imaging.ScanRow(w, lines, i)
		prev := bin.Pix[bin.PixOffset(b.Min.X+x, b.Min.Y)]
		for y := 1; y < h; y++ {
			cur := bin.Pix[bin.PixOffset(b.Min.X+x, b.Min.Y+y)]
			if cur != prev {
				total += 0.5 / float64(h)
			}
			prev = cur
		}
	}

	return Round4(total / float64(2*lines)), nil
}

// Round4 rounds v to 4 decimal places.
func Round4(v float64) float64 {
	r, _ := strconv.ParseFloat(Format(v), 64)
	return r
}

// Format renders a score with exactly 4 decimals, as exported to CSV.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
