package pipeline

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
	"github.com/DevonsMo/IJOQ/internal/normalize"
	"github.com/DevonsMo/IJOQ/internal/settings"
)

const radii = imaging.MaxBlurRadius + 1

// ControlImage is the state kept for one calibration image. The blurred
// rasters and brightness maps for every candidate radius are retained so the
// blur radius and noise margin can be changed afterwards without redoing the
// expensive stages.
type ControlImage struct {
	File string
	// Err is set when the image could not be calibrated; it then takes no
	// part in any aggregate.
	Err error

	// Percentiles holds this image's normalization percentile per radius.
	Percentiles [radii]int

	iqr   float64
	blurs *imaging.BlurSet
	maps  [radii]*image.Gray
}

// OK reports whether the image was calibrated.
func (ci *ControlImage) OK() bool {
	return ci.Err == nil
}

// Calibration is the result of a calibration run. Its parameters can be
// re-tuned; each re-tune starts a new tuning generation and processed images
// from older generations are rejected by Apply.
type Calibration struct {
	RunID   string
	Options settings.Options
	Images  []*ControlImage

	// Percentiles is the geometric mean percentile per blur radius.
	Percentiles [radii]int

	pc *Context

	mu         sync.RWMutex
	params     settings.Params
	generation string
	processed  []*image.Gray
}

// Calibrate derives a parameter set from control images. Images that fail to
// load or threshold are recorded on their ControlImage and skipped; the run
// fails only if no image survives or ctx is canceled.
func (c *Context) Calibrate(ctx context.Context, files []string, opts settings.Options) (*Calibration, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 || len(files) < c.MinCalibrationImages {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("calibration needs at least %d control images (got %d)", max(c.MinCalibrationImages, 1), len(files)), nil)
	}

	cal := &Calibration{
		RunID:   uuid.NewString(),
		Options: opts,
		Images:  make([]*ControlImage, len(files)),
		pc:      c,
	}
	log := c.log().WithFields(logrus.Fields{"run": cal.RunID, "stage": "calibrate"})
	start := time.Now()

	for i, f := range files {
		cal.Images[i] = &ControlImage{File: f}
	}

	// Blur and threshold every image at every radius.
	if err := c.forEach(ctx, cal.Images, func(ci *ControlImage) {
		ci.Err = c.prepareControl(ci, opts)
		entry := log.WithField("file", filepath.Base(ci.File))
		if ci.Err != nil {
			entry.WithError(ci.Err).Warn("control image skipped")
		} else {
			entry.WithField("percentiles", ci.Percentiles).Debug("thresholds computed")
		}
	}); err != nil {
		return nil, err
	}

	ok := cal.Succeeded()
	if len(ok) == 0 {
		return nil, apperrors.NewDegenerateError("no control image could be calibrated", cal.Images[0].Err)
	}

	for r := 0; r < radii; r++ {
		vals := make([]int, len(ok))
		for i, ci := range ok {
			vals[i] = ci.Percentiles[r]
		}
		p, err := normalize.GeometricMeanPercentile(vals)
		if err != nil {
			return nil, err
		}
		cal.Percentiles[r] = p
	}
	log.WithField("percentiles", cal.Percentiles).Debug("percentiles aggregated")

	// Brightness maps depend on the aggregated percentile of each radius.
	if err := c.forEach(ctx, ok, func(ci *ControlImage) {
		ci.Err = buildMaps(ci, opts, cal.Percentiles)
		if ci.Err != nil {
			log.WithField("file", filepath.Base(ci.File)).WithError(ci.Err).Warn("brightness maps failed")
		}
	}); err != nil {
		return nil, err
	}
	ok = cal.Succeeded()
	if len(ok) == 0 {
		return nil, apperrors.NewDegenerateError("no control image could be calibrated", nil)
	}

	blur := opts.BlurRadius
	if opts.AutoBlur {
		iqrs := make([]float64, len(ok))
		for i, ci := range ok {
			iqrs[i] = ci.iqr
		}
		var err error
		if blur, err = normalize.BlurRadiusFromIQR(normalize.Mean(iqrs), opts.CellEstimate()); err != nil {
			return nil, err
		}
	}

	noise := opts.NoiseMargin
	if opts.AutoNoise {
		medians := make([]float64, len(ok))
		for i, ci := range ok {
			level, err := ci.blurs.At(blur)
			if err != nil {
				return nil, err
			}
			medians[i] = normalize.OscillationMedian(level)
		}
		noise = normalize.NoiseMarginFromRatios(normalize.Mean(medians))
	}

	cal.params = settings.Params{
		CompressionSize: opts.CompressionSize,
		Channel:         opts.Channel,
		SectionCount:    opts.SectionCount,
		SampleCount:     opts.SampleCount,
		LineCount:       opts.LineCount,
	}
	if _, err := cal.Retune(ctx, blur, noise); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"blur":       blur,
		"noise":      noise,
		"percentile": cal.Percentiles[blur],
		"failed":     len(cal.Images) - len(ok),
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Info("calibration finished")
	return cal, nil
}

// forEach runs fn on every image with at most Workers in flight.
func (c *Context) forEach(ctx context.Context, images []*ControlImage, fn func(*ControlImage)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for _, ci := range images {
		ci := ci
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(ci)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.NewCanceledError("calibration canceled", err)
	}
	return nil
}

// prepareControl loads one control image, blurs it at every candidate radius
// and computes its per-radius normalization percentile.
func (c *Context) prepareControl(ci *ControlImage, opts settings.Options) error {
	img, err := c.load(ci.File)
	if err != nil {
		return err
	}
	gray, err := Prepare(img, opts.CompressionSize, opts.Channel)
	if err != nil {
		return tagFile(err, ci.File)
	}

	if opts.AutoBlur {
		if ci.iqr, err = normalize.DifferenceIQR(gray); err != nil {
			return tagFile(err, ci.File)
		}
	}

	ci.blurs = imaging.NewBlurSet(gray)
	for r := 0; r < radii; r++ {
		level, err := ci.blurs.At(r)
		if err != nil {
			return err
		}
		th, err := normalize.SectionThresholds(level, opts.SectionCount)
		if err != nil {
			return tagFile(err, ci.File)
		}
		ci.Percentiles[r] = normalize.NormalizationPercentile(th.WhiteFraction, opts.SampleCount)
	}
	return nil
}

// buildMaps computes the brightness map of every blur level.
func buildMaps(ci *ControlImage, opts settings.Options, percentiles [radii]int) error {
	for r := 0; r < radii; r++ {
		level, err := ci.blurs.At(r)
		if err != nil {
			return err
		}
		cutoffs, err := normalize.SampleCutoffs(level, opts.SectionCount, opts.SampleCount, percentiles[r])
		if err != nil {
			return tagFile(err, ci.File)
		}
		b := level.Bounds()
		if ci.maps[r], err = normalize.BuildBrightnessMap(cutoffs, b.Dx(), b.Dy()); err != nil {
			return tagFile(err, ci.File)
		}
	}
	return nil
}

func tagFile(err error, file string) error {
	if ae, ok := err.(*apperrors.AppError); ok && ae.File == "" {
		return ae.WithFile(file)
	}
	return err
}

// Succeeded returns the control images that were calibrated.
func (cal *Calibration) Succeeded() []*ControlImage {
	var ok []*ControlImage
	for _, ci := range cal.Images {
		if ci.OK() {
			ok = append(ok, ci)
		}
	}
	return ok
}

// Params returns the current parameter set.
func (cal *Calibration) Params() settings.Params {
	cal.mu.RLock()
	defer cal.mu.RUnlock()
	return cal.params
}

// Processed returns the binarized raster of image i at the current tuning,
// or nil if the image failed or has not been recomputed yet.
func (cal *Calibration) Processed(i int) *image.Gray {
	cal.mu.RLock()
	defer cal.mu.RUnlock()
	if i < 0 || i >= len(cal.processed) {
		return nil
	}
	return cal.processed[i]
}

// tune switches to a new blur radius and noise margin and returns the new
// tuning generation. Processed images are cleared until recomputed.
func (cal *Calibration) tune(blur int, noise float64) (string, error) {
	if blur < 0 || blur > imaging.MaxBlurRadius {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("blur radius must be within [0,%d] (got %d)", imaging.MaxBlurRadius, blur), nil)
	}
	if noise < -0.5 || noise > 0.5 {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("noise margin must be within [-0.5,0.5] (got %g)", noise), nil)
	}

	cal.mu.Lock()
	defer cal.mu.Unlock()
	cal.params.BlurRadius = blur
	cal.params.Percentile = cal.Percentiles[blur]
	cal.params.NoiseMargin = noise
	cal.generation = uuid.NewString()
	cal.processed = make([]*image.Gray, len(cal.Images))
	return cal.generation, nil
}

// binarize produces a fresh processed raster for image i. The retained blur
// level and brightness map are only read.
func (cal *Calibration) binarize(i, blur int, noise float64) (*image.Gray, error) {
	ci := cal.Images[i]
	if !ci.OK() {
		return nil, ci.Err
	}
	level, err := ci.blurs.At(blur)
	if err != nil {
		return nil, err
	}
	return normalize.Binarize(level, ci.maps[blur], noise)
}

// Retune applies a new blur radius and noise margin and recomputes every
// processed image before returning. Use a Recomputer for interactive changes.
func (cal *Calibration) Retune(ctx context.Context, blur int, noise float64) (settings.Params, error) {
	gen, err := cal.tune(blur, noise)
	if err != nil {
		return settings.Params{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cal.pc.workers())
	for i, ci := range cal.Images {
		if !ci.OK() {
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bin, err := cal.binarize(i, blur, noise)
			if err != nil {
				return err
			}
			cal.Apply(Update{Run: gen, Index: i, Image: bin})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return settings.Params{}, apperrors.NewCanceledError("re-tune canceled", err)
		}
		return settings.Params{}, err
	}
	return cal.Params(), nil
}

// Apply stores a recomputed image. Updates from a superseded tuning
// generation are dropped; Apply reports whether u was stored.
func (cal *Calibration) Apply(u Update) bool {
	cal.mu.Lock()
	defer cal.mu.Unlock()
	if u.Run != cal.generation || u.Err != nil || u.Index < 0 || u.Index >= len(cal.processed) {
		return false
	}
	cal.processed[u.Index] = u.Image
	return true
}
