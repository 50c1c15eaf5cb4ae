package settings

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
)

var sampleParams = Params{
	CompressionSize: 512,
	Channel:         imaging.Green,
	BlurRadius:      2,
	SectionCount:    4,
	SampleCount:     8,
	Percentile:      47,
	NoiseMargin:     0.1,
	LineCount:       20,
}

const sampleFile = `compressed_image_size = 512
channel = 1
blur_radius = 2
section_size = 4
pixels_sampled = 8
normalization_cutoff = 47
noise_cutoff = 0.1
lines = 20
`

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleParams); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.String() != sampleFile {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestParse_RoundTrip(t *testing.T) {
	noises := []float64{0, 0.1, 0.15, -0.5, 0.5, 0.30000000000000004, -0.05}
	for _, noise := range noises {
		p := sampleParams
		p.NoiseMargin = noise

		var buf bytes.Buffer
		if err := Write(&buf, p); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		got, err := Parse(&buf)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if got != p {
			t.Errorf("round trip with noise %v: got %+v, want %+v", noise, got, p)
		}
	}
}

func TestParse_OrderIndependent(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(sampleFile), "\n")
	reversed := make([]string, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		reversed = append(reversed, lines[i])
	}

	got, err := Parse(strings.NewReader(strings.Join(reversed, "\n")))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got != sampleParams {
		t.Errorf("got %+v, want %+v", got, sampleParams)
	}
}

func TestParse_WhiteWritesGreen(t *testing.T) {
	p := sampleParams
	p.Channel = imaging.White

	var buf bytes.Buffer
	if err := Write(&buf, p); err != nil {
		t.Fatal(err)
	}
	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.Channel != imaging.Green {
		t.Errorf("Channel: got %v, want green", got.Channel)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing key", strings.Replace(sampleFile, "lines = 20\n", "", 1)},
		{"non-numeric", strings.Replace(sampleFile, "blur_radius = 2", "blur_radius = two", 1)},
		{"float where int expected", strings.Replace(sampleFile, "section_size = 4", "section_size = 4.5", 1)},
		{"missing equals", strings.Replace(sampleFile, "channel = 1", "channel 1", 1)},
		{"percentile above samples squared", strings.Replace(sampleFile, "normalization_cutoff = 47", "normalization_cutoff = 65", 1)},
		{"noise out of range", strings.Replace(sampleFile, "noise_cutoff = 0.1", "noise_cutoff = 0.75", 1)},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParse_IgnoresUnknownLines(t *testing.T) {
	input := "# saved by ijoq\n\n" + sampleFile + "comment = hello\n"
	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got != sampleParams {
		t.Errorf("got %+v, want %+v", got, sampleParams)
	}
}

func TestFormatNoise(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{0.1, "0.1"},
		{-0.25, "-0.25"},
		{0.5, "0.5"},
	}
	for _, tt := range tests {
		if got := FormatNoise(tt.in); got != tt.want {
			t.Errorf("FormatNoise(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Settings_Output", "Settings dev.txt")

	if err := SaveFile(path, sampleParams); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sampleFile {
		t.Errorf("file content:\n%s", data)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if got != sampleParams {
		t.Errorf("got %+v, want %+v", got, sampleParams)
	}

	// Overwrite in place.
	p := sampleParams
	p.LineCount = 30
	if err := SaveFile(path, p); err != nil {
		t.Fatalf("second SaveFile failed: %v", err)
	}
	if got, _ := LoadFile(path); got.LineCount != 30 {
		t.Errorf("LineCount after overwrite: got %d, want 30", got.LineCount)
	}
}

func TestSaveFile_RejectsInvalid(t *testing.T) {
	p := sampleParams
	p.SectionCount = 0
	if err := SaveFile(filepath.Join(t.TempDir(), "s.txt"), p); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.txt"))
	if !apperrors.IsType(err, apperrors.ErrorTypeInput) {
		t.Errorf("expected input error, got %v", err)
	}
}
