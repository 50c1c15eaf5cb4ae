package pipeline

import (
	"encoding/csv"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/sirupsen/logrus"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
	"github.com/DevonsMo/IJOQ/internal/score"
	"github.com/DevonsMo/IJOQ/internal/settings"
)

const (
	SettingsFolder = "Settings_Output"
	AnalysisFolder = "Analysis_Output"
)

// NextOutputDir creates and returns parent/name, appending " (2)", " (3)"
// and so on while the directory already exists.
func NextOutputDir(parent, name string) (string, error) {
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", apperrors.NewInternalError("failed to create output parent", err)
	}
	for n := 1; ; n++ {
		dir := filepath.Join(parent, name)
		if n > 1 {
			dir = filepath.Join(parent, fmt.Sprintf("%s (%d)", name, n))
		}
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", apperrors.NewInternalError("failed to create output folder", err)
		}
	}
}

// ProcessedName returns the file name a binarized copy of file is saved as.
func ProcessedName(file string) string {
	base := filepath.Base(file)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base + "_processed.png"
}

// SettingsName returns the settings file name for a program version.
func SettingsName(version string) string {
	return fmt.Sprintf("Settings %s.txt", version)
}

// ResultsName returns the score CSV name for a program version.
func ResultsName(version string) string {
	return fmt.Sprintf("IJOQ Results %s.csv", version)
}

// WriteScores writes one CSV row per analyzed image. Failed images are left
// out.
func WriteScores(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"File name", "IJOQ"}); err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if err := cw.Write([]string{filepath.Base(r.File), score.Format(r.Score)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCalibration writes the settings file and, when enabled, the processed
// control images into a fresh Settings_Output folder under parent. It
// returns the folder used.
func (c *Context) SaveCalibration(parent string, cal *Calibration) (string, error) {
	dir, err := NextOutputDir(parent, SettingsFolder)
	if err != nil {
		return "", err
	}
	log := c.log().WithFields(logrus.Fields{"run": cal.RunID, "stage": "save", "dir": dir})

	if err := settings.SaveFile(filepath.Join(dir, SettingsName(c.version())), cal.Params()); err != nil {
		return dir, err
	}

	if c.SaveProcessed {
		for i, ci := range cal.Images {
			if err := c.saveProcessed(dir, ci.File, cal.Processed(i)); err != nil {
				return dir, err
			}
		}
	}
	log.Info("calibration saved")
	return dir, nil
}

// SaveAnalysis writes the score CSV and, when enabled, the processed images
// into a fresh Analysis_Output folder under parent. It returns the folder
// used.
func (c *Context) SaveAnalysis(parent string, results []Result) (string, error) {
	dir, err := NextOutputDir(parent, AnalysisFolder)
	if err != nil {
		return "", err
	}
	log := c.log().WithFields(logrus.Fields{"stage": "save", "dir": dir})

	path := filepath.Join(dir, ResultsName(c.version()))
	t, err := renameio.TempFile("", path)
	if err != nil {
		return dir, apperrors.NewInternalError("failed to create results file", err)
	}
	defer t.Cleanup()
	if err := WriteScores(t, results); err != nil {
		return dir, apperrors.NewInternalError("failed to write results", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return dir, apperrors.NewInternalError("failed to write results", err)
	}

	if c.SaveProcessed {
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			if err := c.saveProcessed(dir, r.File, r.Processed); err != nil {
				return dir, err
			}
		}
	}
	log.WithField("results", len(results)).Info("analysis saved")
	return dir, nil
}

func (c *Context) saveProcessed(dir, file string, img *image.Gray) error {
	if img == nil {
		return nil
	}
	if err := imaging.SavePNG(img, filepath.Join(dir, ProcessedName(file))); err != nil {
		return apperrors.NewInternalError("failed to save processed image", err).WithFile(file)
	}
	return nil
}
