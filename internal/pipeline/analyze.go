package pipeline

import (
	"context"
	"image"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
	"github.com/DevonsMo/IJOQ/internal/normalize"
	"github.com/DevonsMo/IJOQ/internal/score"
	"github.com/DevonsMo/IJOQ/internal/settings"
)

// Result is the outcome of analyzing one image. Err is set instead of Score
// when the image could not be analyzed.
type Result struct {
	File      string      `json:"file"`
	Score     float64     `json:"ijoq"`
	Processed *image.Gray `json:"-"`
	Err       error       `json:"-"`
}

// Analyze runs the full analysis chain on one decoded image: resample,
// channel reduction, blur, local cutoffs, brightness map, binarization and
// line-scan scoring.
func Analyze(img image.Image, p settings.Params) (*image.Gray, float64, error) {
	if err := p.Validate(); err != nil {
		return nil, 0, err
	}

	gray, err := Prepare(img, p.CompressionSize, p.Channel)
	if err != nil {
		return nil, 0, err
	}
	blurred, err := imaging.Blur(gray, p.BlurRadius)
	if err != nil {
		return nil, 0, err
	}
	bin, err := binarizeWith(blurred, p.SectionCount, p.SampleCount, p.Percentile, p.NoiseMargin)
	if err != nil {
		return nil, 0, err
	}

	s, err := score.IJOQ(bin, p.LineCount)
	if err != nil {
		return nil, 0, err
	}
	return bin, s, nil
}

// binarizeWith builds the brightness map of a blurred raster and applies it.
func binarizeWith(blurred *image.Gray, sections, samples, percentile int, noise float64) (*image.Gray, error) {
	cutoffs, err := normalize.SampleCutoffs(blurred, sections, samples, percentile)
	if err != nil {
		return nil, err
	}
	b := blurred.Bounds()
	bmap, err := normalize.BuildBrightnessMap(cutoffs, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	return normalize.Binarize(blurred, bmap, noise)
}

// AnalyzeFile loads path and analyzes it. Errors are tagged with the file.
func (c *Context) AnalyzeFile(path string, p settings.Params) Result {
	res := Result{File: path}
	if c.Cache != nil {
		// Experimental images are read once.
		defer c.Cache.Evict(path)
	}

	img, err := c.load(path)
	if err != nil {
		res.Err = err
		return res
	}

	res.Processed, res.Score, res.Err = Analyze(img, p)
	if ae, ok := res.Err.(*apperrors.AppError); ok && ae.File == "" {
		res.Err = ae.WithFile(path)
	}
	return res
}

// AnalyzeBatch analyzes files concurrently, at most Workers at a time. A
// failing image is recorded on its own Result and never stops the batch.
// Results keep the order of files. The only error returned is cancellation.
func (c *Context) AnalyzeBatch(ctx context.Context, files []string, p settings.Params) ([]Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	log := c.log().WithFields(logrus.Fields{"stage": "analyze", "images": len(files)})
	start := time.Now()

	results := make([]Result, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.AnalyzeFile(f, p)
			entry := log.WithField("file", filepath.Base(f))
			if results[i].Err != nil {
				entry.WithError(results[i].Err).Warn("analysis failed")
			} else {
				entry.WithField("ijoq", results[i].Score).Debug("analyzed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewCanceledError("analysis canceled", err)
	}

	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("analysis finished")
	return results, nil
}
