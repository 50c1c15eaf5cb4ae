package normalize

import (
	"fmt"
	"image"
	"math"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
)

// BrightnessFloor is the minimum cutoff a pixel must exceed. Sections whose
// local cutoff is near zero are pure background and their sensor noise must
// not register as junction.
const BrightnessFloor = 20

// Binarize marks a pixel foreground (255) when it is brighter than
// max(bmap*(1+noise), BrightnessFloor) and background (0) otherwise.
func Binarize(gray, bmap *image.Gray, noise float64) (*image.Gray, error) {
	gb, mb := gray.Bounds(), bmap.Bounds()
	if gb.Dx() != mb.Dx() || gb.Dy() != mb.Dy() {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("brightness map is %dx%d, raster is %dx%d", mb.Dx(), mb.Dy(), gb.Dx(), gb.Dy()), nil)
	}

	out := image.NewGray(image.Rect(0, 0, gb.Dx(), gb.Dy()))
	for y := 0; y < gb.Dy(); y++ {
		for x := 0; x < gb.Dx(); x++ {
			cutoff := math.Max(float64(at(bmap, x, y))*(1+noise), BrightnessFloor)
			if float64(at(gray, x, y)) > cutoff {
				out.Pix[y*out.Stride+x] = 0xff
			}
		}
	}
	return out, nil
}

// ForegroundFraction returns the share of pixels in a binary raster that are
// foreground.
func ForegroundFraction(bin *image.Gray) float64 {
	b := bin.Bounds()
	if b.Empty() {
		return 0
	}
	white := 0
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if at(bin, x, y) > 0 {
				white++
			}
		}
	}
	return float64(white) / float64(b.Dx()*b.Dy())
}
