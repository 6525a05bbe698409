package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gc.json")
	doc := `{"heap_pages": 2, "collect_threshold": 0, "log_level": "debug"}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, level, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HeapPages != 2 || cfg.Collector.CollectThreshold != 0 || level != "debug" {
		t.Errorf("config = %+v, level %q", cfg, level)
	}

	cfg, level, err = loadConfig("")
	if err != nil || cfg.HeapPages == 0 || level != "info" {
		t.Errorf("default config = %+v, %q, %v", cfg, level, err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := newLogger(level); err != nil {
			t.Errorf("newLogger(%q): %v", level, err)
		}
	}
	if _, err := newLogger("loud"); err == nil {
		t.Error("newLogger should reject unknown levels")
	}
}
