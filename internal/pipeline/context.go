package pipeline

import (
	"image"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/DevonsMo/IJOQ/internal/config"
	"github.com/DevonsMo/IJOQ/internal/imaging"
	"github.com/DevonsMo/IJOQ/internal/logger"
)

// Context is the caller-owned state shared by the pipeline runs of one front
// end. It holds no per-run data; every calibration or analysis keeps its own
// rasters.
type Context struct {
	// Log receives progress and per-image failures.
	Log *logrus.Entry

	// Workers bounds how many images are processed at once.
	Workers int

	// MinCalibrationImages is the smallest control set Calibrate accepts.
	MinCalibrationImages int

	// SaveProcessed controls whether binarized images are written next to
	// settings and scores.
	SaveProcessed bool

	// Version is embedded in output file names.
	Version string

	// Cache, when set, is used to decode input files.
	Cache *imaging.ImageCache
}

// NewContext builds a Context from the loaded configuration.
func NewContext(cfg *config.Config, version string) *Context {
	return &Context{
		Log:                  logger.WithField("component", "pipeline"),
		Workers:              cfg.Processing.Workers,
		MinCalibrationImages: cfg.Processing.MinCalibrationImages,
		SaveProcessed:        cfg.Output.SaveProcessed,
		Version:              version,
		Cache:                imaging.NewImageCache(),
	}
}

func (c *Context) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func (c *Context) log() *logrus.Entry {
	if c.Log != nil {
		return c.Log
	}
	return logger.WithField("component", "pipeline")
}

func (c *Context) load(path string) (image.Image, error) {
	if c.Cache != nil {
		return c.Cache.Load(path)
	}
	return imaging.Open(path)
}

func (c *Context) version() string {
	if c.Version == "" {
		return "dev"
	}
	return c.Version
}

// Prepare resamples img to the working size and reduces it to the stained
// channel.
func Prepare(img image.Image, compression int, ch imaging.Channel) (*image.Gray, error) {
	resized, err := imaging.Resample(img, compression)
	if err != nil {
		return nil, err
	}
	return imaging.ReduceChannel(resized, ch), nil
}
