package imaging

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/channel"
	"github.com/disintegration/imaging"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
)

// MaxBlurRadius is the largest radius tried during calibration. The candidate
// radii are 0 through MaxBlurRadius inclusive.
const MaxBlurRadius = 5

// Blur applies a Gaussian blur whose standard deviation is radius pixels.
// Radius 0 returns an unmodified copy.
func Blur(src *image.Gray, radius int) (*image.Gray, error) {
	if radius < 0 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("blur radius must be >= 0 (got %d)", radius), nil)
	}
	if radius == 0 {
		return CloneGray(src), nil
	}
	blurred := imaging.Blur(src, float64(radius))
	return channel.Extract(blurred, channel.Red), nil
}

// BlurSet holds one image blurred at every candidate radius. Building it is
// the dominant cost of calibration, so it is computed once per image and then
// shared read-only by the threshold search, the auto-tuner and binarization.
type BlurSet struct {
	levels [MaxBlurRadius + 1]*image.Gray
}

// NewBlurSet blurs src at each radius from 0 to MaxBlurRadius.
func NewBlurSet(src *image.Gray) *BlurSet {
	s := &BlurSet{}
	for r := range s.levels {
		// Radii in range never fail.
		s.levels[r], _ = Blur(src, r)
	}
	return s
}

// At returns the raster blurred at radius.
func (s *BlurSet) At(radius int) (*image.Gray, error) {
	if radius < 0 || radius > MaxBlurRadius {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("blur radius must be within [0,%d] (got %d)", MaxBlurRadius, radius), nil)
	}
	return s.levels[radius], nil
}

// Bounds returns the bounds shared by every level.
func (s *BlurSet) Bounds() image.Rectangle {
	return s.levels[0].Bounds()
}

// CloneGray returns a copy of src whose bounds start at the origin.
func CloneGray(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		i := src.PixOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()], src.Pix[i:i+b.Dx()])
	}
	return dst
}
