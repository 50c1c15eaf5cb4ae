package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
)

// ResampledSize returns the dimensions an image of w×h pixels is scaled to so
// that its average side approximates target, keeping the aspect ratio. Both
// results are at least 1. Ties round to even.
func ResampledSize(w, h, target int) (int, int) {
	s := float64(target) / 2 * float64(w+h) / float64(w*h)
	nw := int(math.RoundToEven(s * float64(w)))
	nh := int(math.RoundToEven(s * float64(h)))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// Resample rescales img so that (width+height)/2 approximates target, using
// the Catmull-Rom (bicubic) filter.
func Resample(img image.Image, target int) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, apperrors.NewInputError("image has zero area", nil)
	}
	if target <= 0 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("compression size must be > 0 (got %d)", target), nil)
	}
	w, h := ResampledSize(b.Dx(), b.Dy(), target)
	return imaging.Resize(img, w, h, imaging.CatmullRom), nil
}
