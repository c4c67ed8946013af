package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Batch.BatchSize != 10 {
		t.Errorf("Batch.BatchSize = %d, want 10", cfg.Batch.BatchSize)
	}
	if cfg.Batch.Concurrency != 5 {
		t.Errorf("Batch.Concurrency = %d, want 5", cfg.Batch.Concurrency)
	}
	if cfg.Resync.BatchSize != 50 {
		t.Errorf("Resync.BatchSize = %d, want 50", cfg.Resync.BatchSize)
	}
	if cfg.Gateway.Timeout != 30*time.Second {
		t.Errorf("Gateway.Timeout = %v, want 30s", cfg.Gateway.Timeout)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[gateway]
base_url = "https://erp.example.com/api/sync"
token_env = "ERP_TOKEN"

[batch]
batch_size = 20
concurrency = 8

[web]
port = 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.BaseURL != "https://erp.example.com/api/sync" {
		t.Errorf("BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Batch.BatchSize != 20 || cfg.Batch.Concurrency != 8 {
		t.Errorf("Batch = %+v", cfg.Batch)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	// Unspecified sections keep their defaults
	if cfg.Resync.BatchSize != 50 {
		t.Errorf("Resync.BatchSize = %d, want default 50", cfg.Resync.BatchSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Batch.BatchSize != 10 {
		t.Error("missing file should fall back to defaults")
	}
}

func TestGatewayToken(t *testing.T) {
	cfg := Default()
	cfg.Gateway.TokenEnv = "PAYSYNC_TEST_TOKEN"

	t.Setenv("PAYSYNC_TEST_TOKEN", "secret")
	if got := cfg.GatewayToken(); got != "secret" {
		t.Errorf("GatewayToken() = %q, want secret", got)
	}

	cfg.Gateway.TokenEnv = ""
	if got := cfg.GatewayToken(); got != "" {
		t.Errorf("GatewayToken() with no env var = %q, want empty", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFindLocalConfig(t *testing.T) {
	// Create a temp directory structure
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	// Create local config in root
	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[web]\nport = 9000"), 0644); err != nil {
		t.Fatal(err)
	}

	// Save current dir and change to subdir
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(subdir); err != nil {
		t.Fatal(err)
	}

	// Should find config in parent
	found := FindLocalConfig()
	if found != localConfig {
		t.Errorf("FindLocalConfig() = %q, want %q", found, localConfig)
	}
}

func TestFindLocalConfig_NotFound(t *testing.T) {
	// Create a temp directory without any config
	root := t.TempDir()

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	found := FindLocalConfig()
	if found != "" {
		t.Errorf("FindLocalConfig() = %q, want empty string", found)
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	explicitPath := filepath.Join(dir, "explicit.toml")

	content := `[gateway]
base_url = "https://explicit.example.com"
`
	if err := os.WriteFile(explicitPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithLocalFallback(explicitPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.BaseURL != "https://explicit.example.com" {
		t.Errorf("BaseURL = %q, want https://explicit.example.com", cfg.Gateway.BaseURL)
	}
}

func TestLoadWithLocalFallback_LocalConfig(t *testing.T) {
	root := t.TempDir()
	localConfig := filepath.Join(root, LocalConfigName)

	content := `[gateway]
base_url = "https://from-local.example.com"
`
	if err := os.WriteFile(localConfig, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithLocalFallback("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.BaseURL != "https://from-local.example.com" {
		t.Errorf("BaseURL = %q, want https://from-local.example.com", cfg.Gateway.BaseURL)
	}
}
