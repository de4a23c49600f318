package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileYieldsZeroConfig(t *testing.T) {
	cfg, err := loadConfigFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("a missing config file must not be an error: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadConfigParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spread.yaml")
	content := "dataDirectory: /var/lib/spread\ncacheIndex: /var/lib/spread/index\nask: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfigFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDirectory != "/var/lib/spread" {
		t.Fatalf("unexpected data directory: %q", cfg.DataDirectory)
	}
	if cfg.CacheIndex != "/var/lib/spread/index" {
		t.Fatalf("unexpected cache index: %q", cfg.CacheIndex)
	}
	if !cfg.Ask {
		t.Fatal("ask should be enabled")
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spread.yaml")
	if err := os.WriteFile(path, []byte("dataDirectory: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfigFrom(path); err == nil {
		t.Fatal("malformed YAML must be rejected")
	}
}

func TestConfigApplyRelocatesDataDirectory(t *testing.T) {
	originalData := DataDirectoryPath
	originalLock := LockFilePath
	defer func() {
		DataDirectoryPath = originalData
		LockFilePath = originalLock
	}()

	moved := filepath.Join(t.TempDir(), "relocated")
	Config{DataDirectory: moved}.Apply()
	if DataDirectoryPath != moved {
		t.Fatalf("data directory not relocated: %q", DataDirectoryPath)
	}
	if LockFilePath != filepath.Join(moved, LockFileName) {
		t.Fatalf("lock file path not relocated: %q", LockFilePath)
	}

	// An empty override leaves everything alone.
	Config{}.Apply()
	if DataDirectoryPath != moved {
		t.Fatal("an empty config must not reset the data directory")
	}
}
