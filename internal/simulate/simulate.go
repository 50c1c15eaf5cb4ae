// Package simulate generates synthetic junction images with a known total
// junction length. Scoring them shows how the IJOQ value tracks the amount of
// junction actually present.
//
// Each image is a lattice of intersections jittered around a regular grid.
// Neighbouring intersections are joined by straight white lines on black,
// and each line is dropped with a fixed probability. The outermost
// intersections lie half a cell outside the image so that the lattice fills
// it edge to edge.
package simulate

import (
	"context"
	"encoding/csv"
	"fmt"
	"image"
	"math"
	"math/rand"
	"path/filepath"
	"strconv"

	"github.com/google/renameio"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/vector"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
	"github.com/DevonsMo/IJOQ/internal/logger"
)

// LengthsFile is the CSV written next to the generated images.
const LengthsFile = "length.csv"

// Config controls a simulation run.
type Config struct {
	// Probabilities lists the chance of removing each line; one batch of
	// ImagesPerProbability images is generated per entry.
	Probabilities        []float64
	ImagesPerProbability int

	// Dampener scales the random jitter of each intersection, as a fraction
	// of a cell.
	Dampener      float64
	Intersections int
	Size          int
	LineWidth     float64
	Seed          int64
}

// DefaultConfig returns the settings used for the reference data set.
func DefaultConfig() Config {
	return Config{
		Probabilities:        []float64{0, 0.1, 0.2, 0.3, 0.5, 0.7},
		ImagesPerProbability: 10,
		Dampener:             0.6,
		Intersections:        10,
		Size:                 512,
		LineWidth:            4,
		Seed:                 1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case len(c.Probabilities) == 0:
		return apperrors.NewValidationError("at least one removal probability is required", nil)
	case c.ImagesPerProbability < 1:
		return apperrors.NewValidationError("images per probability must be >= 1", nil)
	case c.Intersections < 3:
		return apperrors.NewValidationError(fmt.Sprintf("intersections must be >= 3 (got %d)", c.Intersections), nil)
	case c.Size < 1:
		return apperrors.NewValidationError(fmt.Sprintf("image size must be >= 1 (got %d)", c.Size), nil)
	case c.LineWidth <= 0:
		return apperrors.NewValidationError("line width must be > 0", nil)
	}
	for _, p := range c.Probabilities {
		if p < 0 || p > 1 {
			return apperrors.NewValidationError(fmt.Sprintf("probability %g outside [0,1]", p), nil)
		}
	}
	return nil
}

// Sample is one generated image and its ground truth.
type Sample struct {
	Name        string
	Probability float64
	// Length is the total junction length in pixels.
	Length float64
	Image  *image.Gray
}

type point struct{ x, y float64 }

// Generate draws one image. Intersections are placed first, then the
// horizontal lines and then the vertical ones, each surviving with
// probability 1-p.
func Generate(rng *rand.Rand, c Config, p float64) Sample {
	n := c.Intersections
	cell := float64(c.Size) / float64(n-2)

	pts := make([][]point, n)
	for i := range pts {
		pts[i] = make([]point, n)
		for j := range pts[i] {
			pts[i][j].x = math.RoundToEven((float64(i) + c.Dampener*(rng.Float64()-0.5) - 0.5) * cell)
			pts[i][j].y = math.RoundToEven((float64(j) + c.Dampener*(rng.Float64()-0.5) - 0.5) * cell)
		}
	}

	img := image.NewGray(image.Rect(0, 0, c.Size, c.Size))
	r := vector.NewRasterizer(c.Size, c.Size)
	size := float64(c.Size)
	length := 0.0

	for i := 0; i < n-1; i++ {
		for j := 0; j < n; j++ {
			if rng.Float64() <= p {
				continue
			}
			a, b := pts[i][j], pts[i+1][j]
			addLine(r, a, b, c.LineWidth)
			length += visibleLength(a.x, b.x, math.Hypot(a.x-b.x, a.y-b.y), i, n, size)
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n-1; j++ {
			if rng.Float64() <= p {
				continue
			}
			a, b := pts[i][j], pts[i][j+1]
			addLine(r, a, b, c.LineWidth)
			length += visibleLength(a.y, b.y, math.Hypot(a.x-b.x, a.y-b.y), j, n, size)
		}
	}

	r.Draw(img, img.Bounds(), image.White, image.Point{})
	return Sample{Probability: p, Length: length, Image: img}
}

// visibleLength trims a line that starts or ends outside the image to the
// part inside it, measured along its main axis. k is the line's index along
// that axis.
func visibleLength(a, b, full float64, k, n int, size float64) float64 {
	switch {
	case b == a:
		return full
	case k == 0:
		return b / (b - a) * full
	case k == n-2:
		return (size - a) / (b - a) * full
	default:
		return full
	}
}

// addLine adds a line of the given width as a quad. Every quad is wound the
// same way so overlaps at intersections stay filled.
func addLine(r *vector.Rasterizer, a, b point, width float64) {
	dx, dy := b.x-a.x, b.y-a.y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	r.MoveTo(float32(a.x+nx), float32(a.y+ny))
	r.LineTo(float32(b.x+nx), float32(b.y+ny))
	r.LineTo(float32(b.x-nx), float32(b.y-ny))
	r.LineTo(float32(a.x-nx), float32(a.y-ny))
	r.ClosePath()
}

// Run generates every batch into dir, naming images 1.png, 2.png and so on,
// and writes their lengths to LengthsFile. Images are not kept in the
// returned samples.
func Run(ctx context.Context, c Config, dir string) ([]Sample, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	log := logger.WithFields(logrus.Fields{"stage": "simulate", "dir": dir})
	rng := rand.New(rand.NewSource(c.Seed))

	total := c.ImagesPerProbability * len(c.Probabilities)
	samples := make([]Sample, 0, total)
	for k := 0; k < total; k++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewCanceledError("simulation canceled", err)
		}
		s := Generate(rng, c, c.Probabilities[k/c.ImagesPerProbability])
		s.Name = strconv.Itoa(k+1) + ".png"
		if err := imaging.SavePNG(s.Image, filepath.Join(dir, s.Name)); err != nil {
			return nil, apperrors.NewInternalError("failed to save simulated image", err).WithFile(s.Name)
		}
		s.Image = nil
		log.WithFields(logrus.Fields{"file": s.Name, "p": s.Probability, "length": s.Length}).Debug("generated")
		samples = append(samples, s)
	}

	if err := writeLengths(filepath.Join(dir, LengthsFile), samples); err != nil {
		return nil, err
	}
	log.WithField("images", total).Info("simulation finished")
	return samples, nil
}

func writeLengths(path string, samples []Sample) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return apperrors.NewInternalError("failed to create lengths file", err)
	}
	defer t.Cleanup()

	w := csv.NewWriter(t)
	if err := w.Write([]string{"File name", "Length"}); err != nil {
		return err
	}
	for i, s := range samples {
		if err := w.Write([]string{strconv.Itoa(i + 1), strconv.FormatFloat(s.Length, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.NewInternalError("failed to write lengths", err)
	}
	return t.CloseAtomicallyReplace()
}
