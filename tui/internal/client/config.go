package client

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the TUI-side configuration.
type Config struct {
	ServerURL         string        `yaml:"server_url"`
	SessionPoll       time.Duration `yaml:"session_poll"`
	EventPoll         time.Duration `yaml:"event_poll"`
	SessionLimit      int           `yaml:"session_limit"`
	EventLimit        int           `yaml:"event_limit"`
	MarkdownStyle     string        `yaml:"markdown_style"`
	DisableLiveUpdate bool          `yaml:"disable_live_update"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:     "http://127.0.0.1:8765",
		SessionPoll:   2 * time.Second,
		EventPoll:     1 * time.Second,
		SessionLimit:  50,
		EventLimit:    500,
		MarkdownStyle: "dark",
	}
}

// DefaultConfigPath is where LoadConfig looks when no explicit path is
// passed.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agent-monitor", "tui.yaml")
}

// LoadConfig reads a YAML config file over the defaults, so absent
// keys keep their default values. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
