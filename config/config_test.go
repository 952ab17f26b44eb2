package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" || cfg.GatewayAddress != ":8081" || cfg.DataDir != "./auction-data" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file written: %v", err)
	}

	// A second load reads the file just written.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *again != *cfg {
		t.Fatalf("reload mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = ":9090"
DataDir = "/var/lib/auctiond"
Env = "production"
ExtensionWindowSeconds = 600
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9090" {
		t.Fatalf("RPCAddress = %q", cfg.RPCAddress)
	}
	if cfg.DataDir != "/var/lib/auctiond" {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Env != "production" {
		t.Fatalf("Env = %q", cfg.Env)
	}
	if cfg.ExtensionWindowSeconds != 600 {
		t.Fatalf("ExtensionWindowSeconds = %d", cfg.ExtensionWindowSeconds)
	}
	// Omitted field falls back to the default.
	if cfg.GatewayAddress != ":8081" {
		t.Fatalf("GatewayAddress = %q", cfg.GatewayAddress)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("RPCAddress = [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode failure")
	}
}

func TestLoadCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.toml")
	if _, err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file in created directory: %v", err)
	}
}
