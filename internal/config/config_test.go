package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	def := DefaultConfig()
	if cfg.Processing.MinCalibrationImages != def.Processing.MinCalibrationImages {
		t.Errorf("MinCalibrationImages: got %d, want %d",
			cfg.Processing.MinCalibrationImages, def.Processing.MinCalibrationImages)
	}
	if cfg.Processing.MaxInputFiles != 99 {
		t.Errorf("MaxInputFiles: got %d, want 99", cfg.Processing.MaxInputFiles)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ijoq.yaml")
	data := []byte("processing:\n  workers: 2\nbasic:\n  cellsX: 60\n  cellsY: 40\n  channel: red\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Processing.Workers != 2 {
		t.Errorf("Workers: got %d, want 2", cfg.Processing.Workers)
	}
	if cfg.Basic.CellsX != 60 || cfg.Basic.CellsY != 40 {
		t.Errorf("cells: got %dx%d, want 60x40", cfg.Basic.CellsX, cfg.Basic.CellsY)
	}
	if cfg.Basic.Channel != "red" {
		t.Errorf("Channel: got %q, want red", cfg.Basic.Channel)
	}
	// Untouched keys keep their defaults.
	if cfg.Processing.MinCalibrationImages != 3 {
		t.Errorf("MinCalibrationImages: got %d, want 3", cfg.Processing.MinCalibrationImages)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("IJOQ_WORKERS", "5")
	t.Setenv("IJOQ_HTTP_ADDR", "0.0.0.0:9000")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Processing.Workers != 5 {
		t.Errorf("Workers: got %d, want 5", cfg.Processing.Workers)
	}
	if cfg.HTTP.Addr != "0.0.0.0:9000" {
		t.Errorf("Addr: got %q", cfg.HTTP.Addr)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("IJOQ_WORKERS", "0")

	if _, err := LoadConfig(""); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ijoq.yaml")
	cfg := DefaultConfig()
	cfg.Processing.Workers = 3
	cfg.Output.Dir = "/data/out"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got.Processing.Workers != 3 || got.Output.Dir != "/data/out" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
