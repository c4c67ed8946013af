package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Gateway       GatewayConfig       `toml:"gateway"`
	Batch         BatchConfig         `toml:"batch"`
	Resync        ResyncConfig        `toml:"resync"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath  string `toml:"database_path"`
	SelectionsDir string `toml:"selections_dir"`
	SchedulePath  string `toml:"schedule_path"`
}

// GatewayConfig holds ERP sync gateway settings. The bearer token is read
// from the named environment variable, never from the config file.
type GatewayConfig struct {
	BaseURL  string        `toml:"base_url"`
	TokenEnv string        `toml:"token_env"`
	Timeout  time.Duration `toml:"timeout"`
}

// BatchConfig holds batch fetch pacing settings
type BatchConfig struct {
	BatchSize   int           `toml:"batch_size"`
	Concurrency int           `toml:"concurrency"`
	GroupDelay  time.Duration `toml:"group_delay"`
	BatchDelay  time.Duration `toml:"batch_delay"`
}

// ResyncConfig holds resync pacing settings
type ResyncConfig struct {
	BatchSize int           `toml:"batch_size"`
	Delay     time.Duration `toml:"delay"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web UI settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath:  filepath.Join(home, ".paysync", "paysync.db"),
			SelectionsDir: filepath.Join(home, ".paysync", "selections"),
			SchedulePath:  filepath.Join(home, ".paysync", "schedule.toml"),
		},
		Gateway: GatewayConfig{
			BaseURL:  "http://localhost:5000/api/sync",
			TokenEnv: "PAYSYNC_GATEWAY_TOKEN",
			Timeout:  30 * time.Second,
		},
		Batch: BatchConfig{
			BatchSize:   10,
			Concurrency: 5,
			GroupDelay:  50 * time.Millisecond,
			BatchDelay:  300 * time.Millisecond,
		},
		Resync: ResyncConfig{
			BatchSize: 50,
			Delay:     500 * time.Millisecond,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.SelectionsDir = ExpandPath(cfg.General.SelectionsDir)
	cfg.General.SchedulePath = ExpandPath(cfg.General.SchedulePath)

	return cfg, nil
}

// GatewayToken reads the bearer token from the configured environment
// variable. Empty when unset.
func (c *Config) GatewayToken() string {
	if c.Gateway.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Gateway.TokenEnv)
}

// LocalConfigName is the per-project config filename discovered by walking
// up from the working directory.
const LocalConfigName = ".paysync.toml"

// FindLocalConfig searches the working directory and its parents for a
// local config file. Returns "" when none exists.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads the explicit path when given, otherwise a
// discovered local config, otherwise the default location.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "paysync", "config.toml")
}
