// Package transport exposes single-image analysis over HTTP.
package transport

import (
	"context"
	"errors"
	"image"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/DevonsMo/IJOQ/internal/config"
	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
	"github.com/DevonsMo/IJOQ/internal/logger"
	"github.com/DevonsMo/IJOQ/internal/pipeline"
	"github.com/DevonsMo/IJOQ/internal/settings"
)

// AnalysisResponse is the body of a successful POST /analyze.
type AnalysisResponse struct {
	File      string          `json:"file"`
	IJOQ      float64         `json:"ijoq"`
	Params    settings.Params `json:"params"`
	Processed string          `json:"processed_base64,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewHandler builds the HTTP router.
func NewHandler(cfg *config.Config, version string) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(int64(cfg.HTTP.MaxBodyMB)<<20),
	)

	r.GET("/health", healthCheck(version))
	r.POST("/analyze", analyzeImage(time.Duration(cfg.HTTP.TimeoutSeconds)*time.Second))

	return r
}

type analysis struct {
	bin   *image.Gray
	score float64
	err   error
}

// analyzeImage scores one uploaded image. The multipart form carries the
// image under "image" and the contents of a settings file under "settings".
func analyzeImage(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		fh, err := c.FormFile("image")
		if err != nil {
			respondError(c, apperrors.NewValidationError("multipart field \"image\" is required", err))
			return
		}
		raw, ok := c.GetPostForm("settings")
		if !ok {
			respondError(c, apperrors.NewValidationError("form field \"settings\" is required", nil))
			return
		}
		p, err := settings.Parse(strings.NewReader(raw))
		if err != nil {
			respondError(c, err)
			return
		}

		name := filepath.Base(fh.Filename)
		f, err := fh.Open()
		if err != nil {
			respondError(c, apperrors.NewInputError("failed to read upload", err).WithFile(name))
			return
		}
		img, err := imaging.Decode(f, name)
		f.Close()
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"file": name,
			"size": fh.Size,
		}).Debug("analyzing upload")

		// Analyze is not interruptible; the request stops waiting for it
		// once the deadline passes.
		done := make(chan analysis, 1)
		go func() {
			bin, s, err := pipeline.Analyze(img, p)
			done <- analysis{bin, s, err}
		}()

		var res analysis
		select {
		case res = <-done:
		case <-ctx.Done():
			respondError(c, apperrors.NewCanceledError("analysis did not finish in time", ctx.Err()).WithFile(name))
			return
		}
		if res.err != nil {
			if ae, ok := res.err.(*apperrors.AppError); ok && ae.File == "" {
				res.err = ae.WithFile(name)
			}
			respondError(c, res.err)
			return
		}

		resp := AnalysisResponse{File: name, IJOQ: res.score, Params: p}
		if c.Query("processed") == "true" {
			if resp.Processed, err = imaging.EncodePNGBase64(res.bin); err != nil {
				respondError(c, apperrors.NewInternalError("failed to encode processed image", err))
				return
			}
		}

		logger.WithFields(logrus.Fields{
			"file": name,
			"ijoq": res.score,
		}).Info("upload analyzed")
		c.JSON(http.StatusOK, resp)
	}
}

func healthCheck(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "available",
			"version": version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"ip":          c.ClientIP(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request handled")
	}
}

func respondError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	resp := ErrorResponse{Message: err.Error()}

	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		code = ae.StatusCode()
		resp.Type = string(ae.Type)
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		code = http.StatusRequestEntityTooLarge
	}
	resp.Error = http.StatusText(code)

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Warn("request failed")

	c.AbortWithStatusJSON(code, resp)
}
