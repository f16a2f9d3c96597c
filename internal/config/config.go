package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robertcprice/agent-monitor/internal/session"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Paths     PathsConfig     `yaml:"paths"`
	Adapters  AdaptersConfig  `yaml:"adapters"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type PathsConfig struct {
	DataDir      string `yaml:"data_dir"`
	DBPath       string `yaml:"db_path"`
	SocketPath   string `yaml:"socket_path"`
	BridgeSocket string `yaml:"bridge_socket"`
	StatusFile   string `yaml:"status_file"`
	ClaudeHome   string `yaml:"claude_home"`
}

type AdaptersConfig struct {
	ClaudeScanInterval  time.Duration `yaml:"claude_scan_interval"`
	ProcessScanInterval time.Duration `yaml:"process_scan_interval"`
	EnableClaude        bool          `yaml:"enable_claude"`
	EnableCursor        bool          `yaml:"enable_cursor"`
	EnableAider         bool          `yaml:"enable_aider"`
}

type AnalyticsConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	StatusInterval   time.Duration `yaml:"status_interval"`
	MaxCallsPerHour  int           `yaml:"max_calls_per_hour"`
	RateLimitOff     bool          `yaml:"rate_limit_off"`
}

type PrivacyConfig struct {
	MaskProjectPaths bool     `yaml:"mask_project_paths"`
	MaskSessionIDs   bool     `yaml:"mask_session_ids"`
	MaskPIDs         bool     `yaml:"mask_pids"`
	AllowedPaths     []string `yaml:"allowed_paths"`
	BlockedPaths     []string `yaml:"blocked_paths"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".local", "share", "agent-monitor")

	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Paths: PathsConfig{
			DataDir:      dataDir,
			DBPath:       filepath.Join(dataDir, "sessions.db"),
			SocketPath:   "/tmp/agent-monitor.sock",
			BridgeSocket: "/tmp/terminit.sock",
			StatusFile:   filepath.Join(dataDir, "status.json"),
			ClaudeHome:   filepath.Join(home, ".claude"),
		},
		Adapters: AdaptersConfig{
			ClaudeScanInterval:  60 * time.Second,
			ProcessScanInterval: 30 * time.Second,
			EnableClaude:        true,
			EnableCursor:        true,
			EnableAider:         true,
		},
		Analytics: AnalyticsConfig{
			SnapshotInterval: 60 * time.Second,
			StatusInterval:   30 * time.Second,
			MaxCallsPerHour:  100,
		},
	}
}

// Load reads a YAML config file over the defaults, so absent keys keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewPrivacyFilter builds the session filter described by this config.
func (p PrivacyConfig) NewPrivacyFilter() *session.PrivacyFilter {
	return &session.PrivacyFilter{
		MaskProjectPaths: p.MaskProjectPaths,
		MaskSessionIDs:   p.MaskSessionIDs,
		MaskPIDs:         p.MaskPIDs,
		AllowedPaths:     p.AllowedPaths,
		BlockedPaths:     p.BlockedPaths,
	}
}

// EnsureDirs creates the data directory tree.
func (c *Config) EnsureDirs() error {
	return os.MkdirAll(c.Paths.DataDir, 0o755)
}
