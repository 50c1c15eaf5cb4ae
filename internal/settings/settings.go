// Package settings defines the calibration parameter set and its plain-text
// file format.
//
// A settings file holds one "key = value" pair per line:
//
//	compressed_image_size = 512
//	channel = 1
//	blur_radius = 2
//	section_size = 4
//	pixels_sampled = 8
//	normalization_cutoff = 47
//	noise_cutoff = 0.1
//	lines = 20
//
// Lines may appear in any order. A line is assigned to the first key, in the
// order above, that occurs anywhere in it, so keys must stay distinct.
package settings

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
)

// Settings file keys in match priority order.
const (
	KeyCompression = "compressed_image_size"
	KeyChannel     = "channel"
	KeyBlur        = "blur_radius"
	KeySections    = "section_size"
	KeySamples     = "pixels_sampled"
	KeyPercentile  = "normalization_cutoff"
	KeyNoise       = "noise_cutoff"
	KeyLines       = "lines"
)

var keyOrder = []string{
	KeyCompression, KeyChannel, KeyBlur, KeySections,
	KeySamples, KeyPercentile, KeyNoise, KeyLines,
}

// Params is the calibration result consumed unchanged by every analysis.
type Params struct {
	CompressionSize int             `json:"compressed_image_size"`
	Channel         imaging.Channel `json:"channel"`
	BlurRadius      int             `json:"blur_radius"`
	SectionCount    int             `json:"section_size"`
	SampleCount     int             `json:"pixels_sampled"`
	Percentile      int             `json:"normalization_cutoff"`
	NoiseMargin     float64         `json:"noise_cutoff"`
	LineCount       int             `json:"lines"`
}

// Validate checks every field against its allowed range.
func (p Params) Validate() error {
	var problems []string
	if p.CompressionSize < 1 {
		problems = append(problems, fmt.Sprintf("%s must be >= 1", KeyCompression))
	}
	if p.Channel < imaging.Red || p.Channel > imaging.White {
		problems = append(problems, fmt.Sprintf("%s must be a channel index", KeyChannel))
	}
	if p.BlurRadius < 0 {
		problems = append(problems, fmt.Sprintf("%s must be >= 0", KeyBlur))
	}
	if p.SectionCount < 1 {
		problems = append(problems, fmt.Sprintf("%s must be >= 1", KeySections))
	}
	if p.SampleCount < 1 {
		problems = append(problems, fmt.Sprintf("%s must be >= 1", KeySamples))
	} else if p.Percentile < 1 || p.Percentile > p.SampleCount*p.SampleCount {
		problems = append(problems, fmt.Sprintf("%s must be within [1,%d]", KeyPercentile, p.SampleCount*p.SampleCount))
	}
	if p.NoiseMargin < -0.5 || p.NoiseMargin > 0.5 {
		problems = append(problems, fmt.Sprintf("%s must be within [-0.5,0.5]", KeyNoise))
	}
	if p.LineCount < 1 {
		problems = append(problems, fmt.Sprintf("%s must be >= 1", KeyLines))
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid settings: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// FormatNoise renders a noise margin with the shortest decimal form that
// parses back to the same value, always including a decimal point.
func FormatNoise(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Write serializes p in the settings file format.
func Write(w io.Writer, p Params) error {
	_, err := fmt.Fprintf(w,
		"%s = %d\n%s = %d\n%s = %d\n%s = %d\n%s = %d\n%s = %d\n%s = %s\n%s = %d\n",
		KeyCompression, p.CompressionSize,
		KeyChannel, p.Channel.Index(),
		KeyBlur, p.BlurRadius,
		KeySections, p.SectionCount,
		KeySamples, p.SampleCount,
		KeyPercentile, p.Percentile,
		KeyNoise, FormatNoise(p.NoiseMargin),
		KeyLines, p.LineCount)
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// matchKey returns the first key, in priority order, contained in line.
func matchKey(line string) (string, bool) {
	for _, k := range keyOrder {
		if strings.Contains(line, k) {
			return k, true
		}
	}
	return "", false
}

// Parse reads a settings file. Every key must be present with a valid value.
// Blank and unrecognised lines are ignored; a repeated key keeps its last
// value.
func Parse(r io.Reader) (Params, error) {
	var p Params
	seen := make(map[string]bool, len(keyOrder))

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, ok := matchKey(line)
		if !ok {
			continue
		}
		_, raw, found := strings.Cut(line, "=")
		if !found {
			return Params{}, apperrors.NewValidationError(
				fmt.Sprintf("line %d: missing '=' after %s", n, key), nil)
		}
		raw = strings.TrimSpace(raw)

		if key == KeyNoise {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Params{}, apperrors.NewValidationError(
					fmt.Sprintf("line %d: invalid %s %q", n, key, raw), err)
			}
			p.NoiseMargin = v
			seen[key] = true
			continue
		}

		v, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, apperrors.NewValidationError(
				fmt.Sprintf("line %d: invalid %s %q", n, key, raw), err)
		}
		switch key {
		case KeyCompression:
			p.CompressionSize = v
		case KeyChannel:
			p.Channel = imaging.Channel(v)
		case KeyBlur:
			p.BlurRadius = v
		case KeySections:
			p.SectionCount = v
		case KeySamples:
			p.SampleCount = v
		case KeyPercentile:
			p.Percentile = v
		case KeyLines:
			p.LineCount = v
		}
		seen[key] = true
	}
	if err := sc.Err(); err != nil {
		return Params{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var missing []string
	for _, k := range keyOrder {
		if !seen[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Params{}, apperrors.NewValidationError("missing settings: "+strings.Join(missing, ", "), nil)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// SaveFile writes p to path atomically: readers see either the previous file
// or the complete new one.
func SaveFile(path string, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	o, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	defer o.Cleanup()

	if err := Write(o, p); err != nil {
		return err
	}
	if err := o.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// LoadFile reads and validates the settings file at path.
func LoadFile(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return Params{}, apperrors.NewInputError("failed to open settings", err).WithFile(path)
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return Params{}, fmt.Errorf("failed to load settings from %s: %w", path, err)
	}
	return p, nil
}
