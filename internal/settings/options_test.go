package settings

import (
	"testing"

	"github.com/DevonsMo/IJOQ/internal/imaging"
)

func TestBasic(t *testing.T) {
	tests := []struct {
		name           string
		cellsX, cellsY int
		compression    int
		sections       int
		lines          int
	}{
		{"sparse", 20, 30, 512, 4, 20},
		{"boundary stays sparse", 60, 40, 512, 4, 50},
		{"dense", 60, 60, 1024, 6, 60},
		{"few cells keep ten lines", 3, 5, 512, 4, 10},
		{"half rounds to even", 25, 25, 512, 4, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := Basic(tt.cellsX, tt.cellsY, imaging.Green)
			if err != nil {
				t.Fatalf("Basic failed: %v", err)
			}
			if o.CompressionSize != tt.compression || o.SectionCount != tt.sections || o.LineCount != tt.lines {
				t.Errorf("got compression %d sections %d lines %d, want %d %d %d",
					o.CompressionSize, o.SectionCount, o.LineCount, tt.compression, tt.sections, tt.lines)
			}
			if o.SampleCount != 8 || !o.AutoBlur || !o.AutoNoise {
				t.Errorf("unexpected defaults: %+v", o)
			}
		})
	}
}

func TestBasic_InvalidCells(t *testing.T) {
	if _, err := Basic(0, 10, imaging.Red); err == nil {
		t.Error("expected error for zero cells")
	}
	if _, err := Basic(10, 100, imaging.Red); err == nil {
		t.Error("expected error for too many cells")
	}
}

func TestOptions_Validate(t *testing.T) {
	valid := Options{
		CompressionSize: 256,
		Channel:         imaging.Red,
		BlurRadius:      3,
		SectionCount:    4,
		SampleCount:     8,
		NoiseMargin:     0.1,
		LineCount:       20,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"compression too small", func(o *Options) { o.CompressionSize = 64 }},
		{"compression too large", func(o *Options) { o.CompressionSize = 2048 }},
		{"blur too large", func(o *Options) { o.BlurRadius = 6 }},
		{"no sections", func(o *Options) { o.SectionCount = 0 }},
		{"too many sections", func(o *Options) { o.SectionCount = 11 }},
		{"no samples", func(o *Options) { o.SampleCount = 0 }},
		{"noise too high", func(o *Options) { o.NoiseMargin = 0.6 }},
		{"no lines", func(o *Options) { o.LineCount = 0 }},
		{"auto blur without cells", func(o *Options) { o.AutoBlur = true }},
	}

	for _, tt := range tests {
		o := valid
		tt.mutate(&o)
		if err := o.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	// Explicit values are ignored when estimated automatically.
	o := valid
	o.AutoNoise = true
	o.NoiseMargin = 9
	if err := o.Validate(); err != nil {
		t.Errorf("auto noise with stale explicit value: %v", err)
	}
}
