package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig should validate: %v", err)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty data_dir")
	}

	cfg = DefaultConfig()
	cfg.DirectCommitIntervalMS = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive direct_commit_interval_ms")
	}

	cfg = DefaultConfig()
	cfg.MaxStorageSizeMB = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative max_storage_size_mb")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.HTTPAddr = ":9999"
	cfg.MaxPoolSize = 123

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("config file was not written: err=%v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.HTTPAddr != ":9999" || got.MaxPoolSize != 123 {
		t.Errorf("round-tripped config mismatch: %+v", got)
	}
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	if err := os.WriteFile(path, []byte(`{"http_addr": ":1234"}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":1234" {
		t.Errorf("explicit field should be preserved: got %q", cfg.HTTPAddr)
	}
	if cfg.DataDir != DefaultConfig().DataDir {
		t.Errorf("omitted field should fall back to default: got %q", cfg.DataDir)
	}
}
