package settings

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
)

// Ranges accepted for a calibration request.
const (
	MinCompression = 128
	MaxCompression = 1024
	MaxSections    = 10
	MaxSamples     = 99
	MaxLines       = 99
	MaxCells       = 99
)

// Options are the inputs of a calibration run. When AutoBlur or AutoNoise is
// set the corresponding value is estimated from the control images and the
// explicit field is ignored.
type Options struct {
	CompressionSize int             `json:"compressed_image_size"`
	Channel         imaging.Channel `json:"channel"`
	BlurRadius      int             `json:"blur_radius"`
	AutoBlur        bool            `json:"auto_blur"`
	SectionCount    int             `json:"section_size"`
	SampleCount     int             `json:"pixels_sampled"`
	NoiseMargin     float64         `json:"noise_cutoff"`
	AutoNoise       bool            `json:"auto_noise"`
	LineCount       int             `json:"lines"`

	// CellsX and CellsY estimate how many cells span each axis. They drive
	// the automatic blur radius.
	CellsX int `json:"cells_x,omitempty"`
	CellsY int `json:"cells_y,omitempty"`
}

// CellEstimate returns the mean of the per-axis cell estimates.
func (o Options) CellEstimate() float64 {
	return float64(o.CellsX+o.CellsY) / 2
}

// Validate checks the request against the accepted ranges.
func (o Options) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(o.CompressionSize >= MinCompression && o.CompressionSize <= MaxCompression,
		"compression size must be within [%d,%d]", MinCompression, MaxCompression)
	check(o.Channel >= imaging.Red && o.Channel <= imaging.White, "unknown channel %d", int(o.Channel))
	if !o.AutoBlur {
		check(o.BlurRadius >= 0 && o.BlurRadius <= imaging.MaxBlurRadius,
			"blur radius must be within [0,%d]", imaging.MaxBlurRadius)
	} else {
		check(o.CellsX >= 1 && o.CellsX <= MaxCells && o.CellsY >= 1 && o.CellsY <= MaxCells,
			"cell estimates must be within [1,%d]", MaxCells)
	}
	check(o.SectionCount >= 1 && o.SectionCount <= MaxSections,
		"section count must be within [1,%d]", MaxSections)
	check(o.SampleCount >= 1 && o.SampleCount <= MaxSamples,
		"sample count must be within [1,%d]", MaxSamples)
	if !o.AutoNoise {
		check(o.NoiseMargin >= -0.5 && o.NoiseMargin <= 0.5, "noise margin must be within [-0.5,0.5]")
	}
	check(o.LineCount >= 1 && o.LineCount <= MaxLines, "line count must be within [1,%d]", MaxLines)

	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid calibration options: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// Basic derives a full calibration request from the number of cells
// expected along each axis. Dense images are worked at 1024 pixels with six
// sections, sparse ones at 512 with four; blur and noise are automatic.
func Basic(cellsX, cellsY int, ch imaging.Channel) (Options, error) {
	o := Options{
		Channel:     ch,
		AutoBlur:    true,
		SampleCount: 8,
		AutoNoise:   true,
		CellsX:      cellsX,
		CellsY:      cellsY,
	}

	avg := o.CellEstimate()
	if avg > 50 {
		o.CompressionSize, o.SectionCount = 1024, 6
	} else {
		o.CompressionSize, o.SectionCount = 512, 4
	}
	o.LineCount = int(math.Max(10, math.RoundToEven(avg/10)*10))

	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}
