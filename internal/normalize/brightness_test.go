package normalize

import (
	"image"
	"testing"
)

// rampX returns a raster whose brightness is 10*x.
func rampX(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Pix[y*g.Stride+x] = uint8(10 * x)
		}
	}
	return g
}

func TestSampleCutoffs(t *testing.T) {
	// With 16 pixels, 2 sections and 2 samples, columns 2, 6, 10 and 14 are
	// sampled.
	g := rampX(16, 16)

	tests := []struct {
		percentile int
		want       [2]uint8 // section 0 and section 1 along x
	}{
		{1, [2]uint8{20, 100}},
		{2, [2]uint8{20, 100}},
		{3, [2]uint8{60, 140}},
		{4, [2]uint8{60, 140}},
	}

	for _, tt := range tests {
		c, err := SampleCutoffs(g, 2, 2, tt.percentile)
		if err != nil {
			t.Fatalf("SampleCutoffs failed: %v", err)
		}
		if c.N() != 2 {
			t.Fatalf("N: got %d, want 2", c.N())
		}
		for sx := 0; sx < 2; sx++ {
			for sy := 0; sy < 2; sy++ {
				if c[sx][sy] != tt.want[sx] {
					t.Errorf("percentile %d section (%d,%d): got %d, want %d",
						tt.percentile, sx, sy, c[sx][sy], tt.want[sx])
				}
			}
		}
	}
}

func TestSampleCutoffs_Invalid(t *testing.T) {
	g := rampX(8, 8)
	tests := []struct {
		name          string
		n, m, percent int
	}{
		{"zero sections", 0, 2, 1},
		{"zero samples", 2, 0, 1},
		{"percentile zero", 2, 2, 0},
		{"percentile above m squared", 2, 2, 5},
	}
	for _, tt := range tests {
		if _, err := SampleCutoffs(g, tt.n, tt.m, tt.percent); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestSampleCutoffs_MoreSectionsThanPixels(t *testing.T) {
	// Sample positions are clamped into the raster.
	if _, err := SampleCutoffs(rampX(3, 3), 5, 3, 9); err != nil {
		t.Errorf("SampleCutoffs failed: %v", err)
	}
}

var testCutoffs = Cutoffs{
	{0, 100},  // sx = 0: top, bottom
	{200, 40}, // sx = 1
}

func TestCutoffs_Interpolate(t *testing.T) {
	tests := []struct {
		name string
		x, y int
		want float64
	}{
		{"top-left corner", 0, 0, 0},
		{"inside corner band", 10, 10, 0},
		{"top-left node", 25, 25, 0},
		{"top-right node", 75, 25, 200},
		{"bottom-right corner", 99, 99, 40},
		{"centre", 50, 50, 85},
		{"left edge midway", 0, 50, 50},
	}

	for _, tt := range tests {
		got := testCutoffs.Interpolate(tt.x, tt.y, 50, 50)
		if got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("%s (%d,%d): got %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestCutoffs_InterpolateUnroundedFraction(t *testing.T) {
	c := Cutoffs{{0, 0}, {200, 200}}
	// With 8 pixel sections, x = 5 lies 0.125 of the way between nodes.
	if got := c.Interpolate(5, 5, 8, 8); got != 25 {
		t.Errorf("got %v, want 25", got)
	}
	if got := c.Interpolate(4, 4, 8, 8); got != 0 {
		t.Errorf("node centre: got %v, want 0", got)
	}
}

func TestBuildBrightnessMap_EdgeBandsClampToNodes(t *testing.T) {
	bmap, err := BuildBrightnessMap(testCutoffs, 100, 100)
	if err != nil {
		t.Fatalf("BuildBrightnessMap failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		for j := 0; j < 25; j++ {
			// Left band matches the first node column, right band the last.
			if bmap.GrayAt(j, i) != bmap.GrayAt(25, i) {
				t.Fatalf("left band (%d,%d) differs from node column", j, i)
			}
			if bmap.GrayAt(99-j, i) != bmap.GrayAt(75, i) {
				t.Fatalf("right band (%d,%d) differs from node column", 99-j, i)
			}
			if bmap.GrayAt(i, j) != bmap.GrayAt(i, 25) {
				t.Fatalf("top band (%d,%d) differs from node row", i, j)
			}
			if bmap.GrayAt(i, 99-j) != bmap.GrayAt(i, 75) {
				t.Fatalf("bottom band (%d,%d) differs from node row", i, 99-j)
			}
		}
	}
}

func TestBuildBrightnessMap_Continuous(t *testing.T) {
	bmap, err := BuildBrightnessMap(testCutoffs, 100, 100)
	if err != nil {
		t.Fatalf("BuildBrightnessMap failed: %v", err)
	}

	// The steepest node-to-node delta is 200 over one 50 pixel section, so a
	// single pixel step moves at most 4 plus one for rounding.
	const maxStep = 5
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := int(bmap.GrayAt(x, y).Y)
			if x > 0 && abs(v-int(bmap.GrayAt(x-1, y).Y)) > maxStep {
				t.Fatalf("jump between (%d,%d) and (%d,%d)", x-1, y, x, y)
			}
			if y > 0 && abs(v-int(bmap.GrayAt(x, y-1).Y)) > maxStep {
				t.Fatalf("jump between (%d,%d) and (%d,%d)", x, y-1, x, y)
			}
			if v > 200 {
				t.Fatalf("value %d at (%d,%d) outside node range", v, x, y)
			}
		}
	}
}

func TestBuildBrightnessMap_SingleSection(t *testing.T) {
	bmap, err := BuildBrightnessMap(Cutoffs{{77}}, 13, 7)
	if err != nil {
		t.Fatalf("BuildBrightnessMap failed: %v", err)
	}
	for _, v := range bmap.Pix {
		if v != 77 {
			t.Fatalf("single section map must be constant, got %d", v)
		}
	}
}

func TestBuildBrightnessMap_Invalid(t *testing.T) {
	if _, err := BuildBrightnessMap(nil, 10, 10); err == nil {
		t.Error("expected error for empty cutoffs")
	}
	if _, err := BuildBrightnessMap(testCutoffs, 0, 10); err == nil {
		t.Error("expected error for zero width")
	}
}
