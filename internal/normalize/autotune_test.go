package normalize

import (
	"image"
	"math"
	"testing"
)

func checkerboard(w, h int, hi uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 1 {
				g.Pix[y*g.Stride+x] = hi
			}
		}
	}
	return g
}

func TestDifferenceIQR(t *testing.T) {
	tests := []struct {
		name string
		g    *image.Gray
		want float64
	}{
		{"uniform", uniform(10, 10, 80), 0},
		// Differences are ten of -100 and eight of +100.
		{"checkerboard", checkerboard(10, 10, 100), 200},
		// Sorted differences 1 1 5 5 5 9 20 20: elements 2 and 6.
		{"uneven column", column(0, 1, 2, 7, 12, 17, 26, 46, 66), 15},
		// Sorted differences -5 -5 -3 1 2 4: elements 2 and 4.
		{"falling and rising", column(20, 15, 10, 7, 8, 10, 14), 5},
	}

	for _, tt := range tests {
		got, err := DifferenceIQR(tt.g)
		if err != nil {
			t.Fatalf("%s: DifferenceIQR failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDifferenceIQR_TooSmall(t *testing.T) {
	if _, err := DifferenceIQR(uniform(1, 1, 0)); err == nil {
		t.Error("expected error for a single pixel raster")
	}
}

func TestBlurRadiusFromIQR(t *testing.T) {
	tests := []struct {
		name    string
		iqr     float64
		cells   float64
		want    int
		wantErr bool
	}{
		// 25*20/10^2.5 = 1.58
		{"typical", 20, 10, 2, false},
		{"clamped low", 0, 10, 1, false},
		{"clamped high", 1000, 10, 5, false},
		{"zero cells", 10, 0, 0, true},
	}

	for _, tt := range tests {
		got, err := BlurRadiusFromIQR(tt.iqr, tt.cells)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestOscillationRatios(t *testing.T) {
	tests := []struct {
		name    string
		profile []uint8
		want    []float64
	}{
		{"flat", []uint8{50, 50, 50, 50}, nil},
		{"rising only", []uint8{0, 10, 20, 30}, nil},
		{"two turns", []uint8{0, 100, 100, 50, 50, 100, 40}, []float64{1, 1}},
		{"small wobble ignored", []uint8{0, 100, 97, 100, 98}, nil},
		{"black trough clamped", []uint8{0, 100, 0, 100}, []float64{99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OscillationRatios(tt.profile)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.IsInf(got[i], 0) || math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("ratio %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestOscillationMedian(t *testing.T) {
	if got := OscillationMedian(uniform(12, 12, 90)); got != 0 {
		t.Errorf("flat raster: got %v, want 0", got)
	}

	// Black troughs clamp to 1, so every turn of a 0/200 checkerboard is 199.
	got := OscillationMedian(checkerboard(12, 12, 200))
	if math.Abs(got-199) > 1e-9 {
		t.Errorf("checkerboard: got %v, want 199", got)
	}
}

func TestOscillationMedian_EvenCount(t *testing.T) {
	tests := []struct {
		name string
		g    *image.Gray
		want float64
	}{
		// Turns 100/50 and 200/50 give ratios 1 and 3; the upper one is taken.
		{"two turns", column(0, 100, 50, 200, 50), 3},
		// Ratios sort to 0.5 0.5 1 2 3 3; element 3 is taken.
		{"six turns", column(0, 100, 50, 200, 50, 150, 100, 150, 100), 2},
	}
	for _, tt := range tests {
		if got := OscillationMedian(tt.g); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

// column builds a one pixel wide raster from top to bottom.
func column(vs ...uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, 1, len(vs)))
	copy(g.Pix, vs)
	return g
}

func TestNoiseMarginFromRatios(t *testing.T) {
	tests := []struct {
		avg  float64
		want float64
	}{
		{0, 0},
		{1, 0.1},
		{2.2, 0.2},
		{3, 0.3},
		{10, 0.5},
		{-4, 0},
	}
	for _, tt := range tests {
		if got := NoiseMarginFromRatios(tt.avg); got != tt.want {
			t.Errorf("NoiseMarginFromRatios(%v) = %v, want %v", tt.avg, got, tt.want)
		}
	}
}

func TestMean(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v", got)
	}
	if got := Mean([]float64{1, 2, 6}); got != 3 {
		t.Errorf("Mean = %v, want 3", got)
	}
}

func uniform(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}
