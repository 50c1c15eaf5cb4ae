package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DevonsMo/IJOQ/internal/settings"
)

func TestNextOutputDir(t *testing.T) {
	parent := t.TempDir()
	want := []string{"Settings_Output", "Settings_Output (2)", "Settings_Output (3)"}
	for _, name := range want {
		dir, err := NextOutputDir(parent, SettingsFolder)
		if err != nil {
			t.Fatalf("NextOutputDir failed: %v", err)
		}
		if dir != filepath.Join(parent, name) {
			t.Errorf("got %s, want %s", dir, name)
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("%s was not created", dir)
		}
	}
}

func TestProcessedName(t *testing.T) {
	tests := map[string]string{
		"img.png":        "img_processed.png",
		"a/b/scan 1.tif": "scan 1_processed.png",
		"x.y.jpeg":       "x.y_processed.png",
		"noext":          "noext_processed.png",
		"dir/.hidden":    ".hidden_processed.png",
		"Control 3.TIFF": "Control 3_processed.png",
	}
	for in, want := range tests {
		if got := ProcessedName(in); got != want {
			t.Errorf("ProcessedName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteScores(t *testing.T) {
	results := []Result{
		{File: "/data/a.png", Score: 0.25},
		{File: "/data/b.png", Err: errors.New("unreadable")},
		{File: "/data/c d.tif", Score: 0.0123},
	}
	var buf bytes.Buffer
	if err := WriteScores(&buf, results); err != nil {
		t.Fatal(err)
	}
	want := "File name,IJOQ\na.png,0.2500\nc d.tif,0.0123\n"
	if buf.String() != want {
		t.Errorf("got\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestSaveCalibrationAndAnalysis(t *testing.T) {
	pc := newTestContext()
	pc.SaveProcessed = true
	files := controlSet(t, 2)
	out := t.TempDir()

	cal, err := pc.Calibrate(context.Background(), files, fixedOptions())
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	dir, err := pc.SaveCalibration(out, cal)
	if err != nil {
		t.Fatalf("SaveCalibration failed: %v", err)
	}
	if filepath.Base(dir) != SettingsFolder {
		t.Errorf("unexpected settings folder %s", dir)
	}
	loaded, err := settings.LoadFile(filepath.Join(dir, "Settings v-test.txt"))
	if err != nil {
		t.Fatalf("saved settings unreadable: %v", err)
	}
	if loaded != cal.Params() {
		t.Errorf("saved %+v, calibrated %+v", loaded, cal.Params())
	}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, ProcessedName(f))); err != nil {
			t.Errorf("processed control image missing: %v", err)
		}
	}

	results, err := pc.AnalyzeBatch(context.Background(), files, loaded)
	if err != nil {
		t.Fatal(err)
	}
	dir, err = pc.SaveAnalysis(out, results)
	if err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	csv, err := os.ReadFile(filepath.Join(dir, "IJOQ Results v-test.csv"))
	if err != nil {
		t.Fatalf("results file missing: %v", err)
	}
	if !bytes.HasPrefix(csv, []byte("File name,IJOQ\n")) || bytes.Count(csv, []byte("\n")) != 3 {
		t.Errorf("unexpected results file:\n%s", csv)
	}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, ProcessedName(f))); err != nil {
			t.Errorf("processed image missing: %v", err)
		}
	}
}

func TestSaveAnalysis_NoProcessed(t *testing.T) {
	pc := newTestContext()
	dir, err := pc.SaveAnalysis(t.TempDir(), []Result{{File: "a.png", Score: 0.1}})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the results file, got %d entries", len(entries))
	}
}
