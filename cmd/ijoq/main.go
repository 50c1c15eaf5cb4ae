package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DevonsMo/IJOQ/internal/config"
	"github.com/DevonsMo/IJOQ/internal/imaging"
	"github.com/DevonsMo/IJOQ/internal/logger"
	"github.com/DevonsMo/IJOQ/internal/pipeline"
	"github.com/DevonsMo/IJOQ/internal/server"
	"github.com/DevonsMo/IJOQ/internal/settings"
	"github.com/DevonsMo/IJOQ/internal/simulate"
	"github.com/DevonsMo/IJOQ/internal/transport"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const usage = `ijoq - junction scoring for microscopy images

Usage: ijoq <command> [options] [images or folder]

Commands:
  calibrate   Derive a settings file from control images
  analyze     Score images with a settings file
  simulate    Generate synthetic junction images of known length
  serve       Run the MCP tool server on stdin/stdout
  http        Run the HTTP analysis service

Options:
  --version, -v    Print version information
  --help, -h       Print this help message

Run "ijoq <command> -h" for the options of a command.

Environment variables:
  IJOQ_LOG_LEVEL=debug      Enable debug logging
  IJOQ_LOG_FORMAT=json      Log as JSON
  IJOQ_WORKERS, IJOQ_OUTPUT_DIR, IJOQ_HTTP_ADDR override the config file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("ijoq %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		fmt.Print(usage)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "calibrate":
		err = runCalibrate(ctx, args)
	case "analyze":
		err = runAnalyze(ctx, args)
	case "simulate":
		err = runSimulate(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "http":
		err = runHTTP(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).Error(os.Args[1] + " failed")
		os.Exit(1)
	}
}

// commonFlags registers the flags every command shares and returns a loader
// for the resulting configuration.
func commonFlags(fs *flag.FlagSet) func() (*config.Config, error) {
	configPath := fs.String("config", "", "YAML configuration file")
	logLevel := fs.String("log-level", os.Getenv("IJOQ_LOG_LEVEL"), "debug, info, warn or error")
	logFormat := fs.String("log-format", os.Getenv("IJOQ_LOG_FORMAT"), "text or json")
	return func() (*config.Config, error) {
		logger.Configure(os.Stderr, *logLevel, *logFormat)
		return config.LoadConfig(*configPath)
	}
}

// inputFiles expands the positional arguments. A single folder is scanned
// for images; anything else is taken as a list of files.
func inputFiles(args []string, limit int) ([]string, error) {
	if len(args) == 0 {
		return nil, errors.New("no images or folder given")
	}
	if len(args) == 1 {
		if st, err := os.Stat(args[0]); err == nil && st.IsDir() {
			files, truncated, err := imaging.CollectImages(args[0], limit)
			if err != nil {
				return nil, err
			}
			if truncated {
				logger.WithFields(logrus.Fields{"dir": args[0], "limit": limit}).Warn("folder holds more images than the limit; extra files ignored")
			}
			return files, nil
		}
	}
	return args, nil
}

func runCalibrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	load := commonFlags(fs)
	out := fs.String("out", "", "parent folder for Settings_Output (default from config)")
	advanced := fs.Bool("advanced", false, "set every parameter explicitly instead of from cell counts")
	cellsX := fs.Int("cells-x", 0, "cells expected across the image (basic mode)")
	cellsY := fs.Int("cells-y", 0, "cells expected down the image (basic mode)")
	channelName := fs.String("channel", "", "red, green, blue or white")
	size := fs.Int("size", 512, "working size in pixels (advanced)")
	blur := fs.Int("blur", -1, "blur radius, -1 to estimate from cell counts (advanced)")
	sections := fs.Int("sections", 4, "sections per axis (advanced)")
	samples := fs.Int("samples", 8, "pixels sampled per section axis (advanced)")
	noise := fs.String("noise", "auto", "noise margin in [-0.5,0.5] or auto (advanced)")
	lines := fs.Int("lines", 20, "scan lines per axis (advanced)")
	fs.Parse(args)

	cfg, err := load()
	if err != nil {
		return err
	}
	if *channelName == "" {
		*channelName = cfg.Basic.Channel
	}
	ch, err := imaging.ParseChannel(*channelName)
	if err != nil {
		return err
	}
	if *cellsX == 0 {
		*cellsX = cfg.Basic.CellsX
	}
	if *cellsY == 0 {
		*cellsY = cfg.Basic.CellsY
	}

	var opts settings.Options
	if *advanced {
		opts = settings.Options{
			CompressionSize: *size,
			Channel:         ch,
			BlurRadius:      *blur,
			AutoBlur:        *blur < 0,
			SectionCount:    *sections,
			SampleCount:     *samples,
			AutoNoise:       *noise == "auto",
			LineCount:       *lines,
			CellsX:          *cellsX,
			CellsY:          *cellsY,
		}
		if !opts.AutoNoise {
			if opts.NoiseMargin, err = strconv.ParseFloat(*noise, 64); err != nil {
				return fmt.Errorf("invalid noise margin %q: %w", *noise, err)
			}
		}
	} else if opts, err = settings.Basic(*cellsX, *cellsY, ch); err != nil {
		return err
	}

	files, err := inputFiles(fs.Args(), cfg.Processing.MaxInputFiles)
	if err != nil {
		return err
	}

	pc := pipeline.NewContext(cfg, Version)
	cal, err := pc.Calibrate(ctx, files, opts)
	if err != nil {
		return err
	}
	for _, ci := range cal.Images {
		if ci.Err != nil {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", ci.File, ci.Err)
		}
	}

	parent := *out
	if parent == "" {
		parent = cfg.Output.Dir
	}
	dir, err := pc.SaveCalibration(parent, cal)
	if err != nil {
		return err
	}

	p := cal.Params()
	fmt.Printf("Calibrated %d of %d images\n", len(cal.Succeeded()), len(cal.Images))
	if err := settings.Write(os.Stdout, p); err != nil {
		return err
	}
	fmt.Printf("Saved to %s\n", filepath.Join(dir, pipeline.SettingsName(Version)))
	return nil
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	load := commonFlags(fs)
	settingsPath := fs.String("settings", "", "settings file written by calibrate (required)")
	out := fs.String("out", "", "parent folder for Analysis_Output (default from config)")
	fs.Parse(args)

	cfg, err := load()
	if err != nil {
		return err
	}
	if *settingsPath == "" {
		return errors.New("-settings is required")
	}
	p, err := settings.LoadFile(*settingsPath)
	if err != nil {
		return err
	}
	files, err := inputFiles(fs.Args(), cfg.Processing.MaxInputFiles)
	if err != nil {
		return err
	}

	pc := pipeline.NewContext(cfg, Version)
	results, err := pc.AnalyzeBatch(ctx, files, p)
	if err != nil {
		return err
	}

	parent := *out
	if parent == "" {
		parent = cfg.Output.Dir
	}
	dir, err := pc.SaveAnalysis(parent, results)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.File, r.Err)
			continue
		}
		fmt.Printf("%s\t%.4f\n", filepath.Base(r.File), r.Score)
	}
	fmt.Printf("Analyzed %d of %d images, results in %s\n", len(results)-failed, len(results), dir)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	def := simulate.DefaultConfig()
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	load := commonFlags(fs)
	out := fs.String("out", "Simulated_Images", "folder for the generated images")
	probs := fs.String("p", joinFloats(def.Probabilities), "comma separated line removal probabilities")
	images := fs.Int("images", def.ImagesPerProbability, "images per probability")
	size := fs.Int("size", def.Size, "image size in pixels")
	intersections := fs.Int("intersections", def.Intersections, "intersections per axis")
	dampener := fs.Float64("jitter", def.Dampener, "intersection jitter as a fraction of a cell")
	width := fs.Float64("width", def.LineWidth, "line width in pixels")
	seed := fs.Int64("seed", def.Seed, "random seed")
	fs.Parse(args)

	if _, err := load(); err != nil {
		return err
	}

	c := simulate.Config{
		ImagesPerProbability: *images,
		Dampener:             *dampener,
		Intersections:        *intersections,
		Size:                 *size,
		LineWidth:            *width,
		Seed:                 *seed,
	}
	for _, s := range strings.Split(*probs, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("invalid probability %q: %w", s, err)
		}
		c.Probabilities = append(c.Probabilities, v)
	}

	if err := os.MkdirAll(*out, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", *out, err)
	}
	samples, err := simulate.Run(ctx, c, *out)
	if err != nil {
		return err
	}
	fmt.Printf("Generated %d images in %s\n", len(samples), *out)
	return nil
}

func joinFloats(vs []float64) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(s, ",")
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	load := commonFlags(fs)
	fs.Parse(args)

	cfg, err := load()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("starting MCP server")

	srv := server.New(cfg, Version)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runHTTP(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("http", flag.ExitOnError)
	load := commonFlags(fs)
	addr := fs.String("addr", "", "listen address (default from config)")
	fs.Parse(args)

	cfg, err := load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      transport.NewHandler(cfg, Version),
		ReadTimeout:  timeout,
		WriteTimeout: timeout + 5*time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"address": cfg.HTTP.Addr,
			"timeout": timeout,
		}).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
