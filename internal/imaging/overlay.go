package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OverlayResult contains the image with section boundaries and scan lines
// drawn over it.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Sections    int    `json:"sections"`
	Lines       int    `json:"lines"`
}

var (
	defaultSectionColor = color.RGBA{255, 0, 0, 255}
	scanLineColor       = color.RGBA{255, 255, 0, 255}
)

// SectionBound returns the pixel offset of boundary k when a side of length n
// is split into m sections. Boundary 0 is 0 and boundary m is n.
func SectionBound(n, m, k int) int {
	return int(math.RoundToEven(float64(n) * float64(k) / float64(m)))
}

// ScanRow returns the row sampled by scan line i of lines on an image of
// height h, clamped to [0, h-1].
func ScanRow(h, lines, i int) int {
	y := int(math.RoundToEven((float64(i) + 0.5) * float64(h) / float64(lines)))
	if y > h-1 {
		y = h - 1
	}
	if y < 0 {
		y = 0
	}
	return y
}

// SectionOverlay draws the sections×sections grid used for local thresholds
// and, when lines > 0, the row and column scan lines used for scoring. Section
// boundaries are drawn in sectionColorHex (a "#RRGGBB" string; red if it
// cannot be parsed). When showLabels is set each section is tagged with its
// "column,row" index.
func SectionOverlay(img image.Image, sections, lines int, sectionColorHex string, showLabels bool) (*OverlayResult, error) {
	if sections <= 0 {
		return nil, fmt.Errorf("sections must be > 0 (got %d)", sections)
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	sectionColor := defaultSectionColor
	if c, err := colorful.Hex(sectionColorHex); err == nil {
		r, g, b := c.RGB255()
		sectionColor = color.RGBA{r, g, b, 255}
	}

	result := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	for i := 0; i < lines; i++ {
		y := ScanRow(height, lines, i)
		for x := 0; x < width; x++ {
			result.SetRGBA(x, y, scanLineColor)
		}
		x := ScanRow(width, lines, i)
		for y := 0; y < height; y++ {
			result.SetRGBA(x, y, scanLineColor)
		}
	}

	// Interior boundaries only; the outer edge needs no line.
	for k := 1; k < sections; k++ {
		x := SectionBound(width, sections, k)
		for y := 0; y < height; y++ {
			result.SetRGBA(x, y, sectionColor)
		}
		y := SectionBound(height, sections, k)
		for x := 0; x < width; x++ {
			result.SetRGBA(x, y, sectionColor)
		}
	}

	if showLabels {
		labelColor := color.RGBA{255, 255, 255, 255}
		bgColor := color.RGBA{0, 0, 0, 180}

		for sy := 0; sy < sections; sy++ {
			for sx := 0; sx < sections; sx++ {
				label := fmt.Sprintf("%d,%d", sx, sy)
				drawLabel(result, SectionBound(width, sections, sx)+2,
					SectionBound(height, sections, sy)+2, label, labelColor, bgColor)
			}
		}
	}

	encoded, err := EncodePNGBase64(result)
	if err != nil {
		return nil, err
	}

	return &OverlayResult{
		Width:       width,
		Height:      height,
		ImageBase64: encoded,
		MimeType:    "image/png",
		Sections:    sections,
		Lines:       lines,
	}, nil
}

// drawLabel writes text with its top-left corner at (x, y) on a
// translucent backing box.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	box := image.Rect(x-1, y-1, x+len(text)*face.Advance+1, y+face.Height+1)
	draw.Draw(img, box.Intersect(img.Bounds()), image.NewUniform(bg), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(text)
}
