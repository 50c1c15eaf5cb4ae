package score

import (
	"image"
	"math"
	"testing"
)

func filled(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// checkerboard returns a binary raster of p×p squares.
func checkerboard(size, p int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/p+y/p)%2 == 1 {
				g.Pix[y*g.Stride+x] = 255
			}
		}
	}
	return g
}

func TestIJOQ_Uniform(t *testing.T) {
	for _, v := range []uint8{0, 255} {
		for _, lines := range []int{1, 5, 50, 500} {
			got, err := IJOQ(filled(64, 48, v), lines)
			if err != nil {
				t.Fatalf("IJOQ failed: %v", err)
			}
			if got != 0 {
				t.Errorf("uniform %d with %d lines: got %v, want 0", v, lines, got)
			}
		}
	}
}

func TestIJOQ_Checkerboard(t *testing.T) {
	tests := []struct {
		size, period, lines int
	}{
		{400, 4, 10},
		{400, 8, 25},
		{600, 10, 40},
		{512, 16, 7},
	}

	for _, tt := range tests {
		got, err := IJOQ(checkerboard(tt.size, tt.period), tt.lines)
		if err != nil {
			t.Fatalf("IJOQ failed: %v", err)
		}
		p, w := float64(tt.period), float64(tt.size)
		want := 0.5 / p * (1 - p/w)
		if math.Abs(got-want) > 1e-4 {
			t.Errorf("size %d period %d lines %d: got %v, want %v",
				tt.size, tt.period, tt.lines, got, want)
		}
	}
}

func TestIJOQ_SingleEdge(t *testing.T) {
	g := filled(100, 100, 0)
	for y := 0; y < 100; y++ {
		for x := 50; x < 100; x++ {
			g.Pix[y*g.Stride+x] = 255
		}
	}
	// One change per row scan of 0.5/100, none on columns.
	got, err := IJOQ(g, 10)
	if err != nil {
		t.Fatalf("IJOQ failed: %v", err)
	}
	if got != 0.0025 {
		t.Errorf("got %v, want 0.0025", got)
	}
}

func TestIJOQ_Invalid(t *testing.T) {
	if _, err := IJOQ(filled(4, 4, 0), 0); err == nil {
		t.Error("expected error for zero lines")
	}
	if _, err := IJOQ(image.NewGray(image.Rect(0, 0, 0, 0)), 3); err == nil {
		t.Error("expected error for empty raster")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0000"},
		{0.12345678, "0.1235"},
		{1.5, "1.5000"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
