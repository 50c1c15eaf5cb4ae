package normalize

import (
	"image"

	"github.com/DevonsMo/IJOQ/internal/imaging"
)

// SectionBounds returns the half-open pixel span [start, end) of section k
// when a side of length n is divided into m sections.
func SectionBounds(n, m, k int) (start, end int) {
	return imaging.SectionBound(n, m, k), imaging.SectionBound(n, m, k+1)
}

// sectionRect returns section (sx, sy) of an n×n grid over bounds.
func sectionRect(bounds image.Rectangle, n, sx, sy int) image.Rectangle {
	x0, x1 := SectionBounds(bounds.Dx(), n, sx)
	y0, y1 := SectionBounds(bounds.Dy(), n, sy)
	return image.Rect(x0, y0, x1, y1).Add(bounds.Min)
}

// at reads the brightness at (x, y) relative to the raster origin.
func at(g *image.Gray, x, y int) uint8 {
	return g.Pix[g.PixOffset(g.Rect.Min.X+x, g.Rect.Min.Y+y)]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
