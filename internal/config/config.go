// Package config loads panetone configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (PANETONE_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .panetone.yaml in current directory
//  2. ~/.config/panetone/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Replay modes control where the tailer positions the cursor the first
// time it sees a session file.
const (
	// ReplayEnd seeks to the end of the file: only records appended after
	// the bridge starts are posted.
	ReplayEnd = "end"
	// ReplayStart consumes the file from offset zero, replaying the whole
	// session into the topic.
	ReplayStart = "start"
)

// Config holds all panetone configuration.
type Config struct {
	// Bot credentials, one per harness kind.
	ClaudeToken string `yaml:"claude_token"`
	CodexToken  string `yaml:"codex_token"`

	// ChatID is the forum group all topics are created in.
	ChatID int64 `yaml:"chat_id"`
	// OwnerID restricts inbound input to one platform user. 0 disables
	// the lock.
	OwnerID int64 `yaml:"owner_id"`

	// Poll is the session log poll interval as a Go duration string.
	Poll string `yaml:"poll"`
	// Replay is the first-sight cursor position: "end" or "start".
	Replay string `yaml:"replay"`
	// Mux forces a multiplexer ("wezterm", "tmux"); empty auto-detects.
	Mux string `yaml:"mux"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed duration (not from YAML, set after loading)
	PollInterval time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Poll:   "2s",
		Replay: ReplayEnd,
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	// Environment variables override everything
	mergeEnv(cfg)

	var err error
	cfg.PollInterval, err = time.ParseDuration(cfg.Poll)
	if err != nil {
		return nil, fmt.Errorf("invalid poll interval %q: %w", cfg.Poll, err)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %q", cfg.Poll)
	}
	if cfg.Replay != ReplayEnd && cfg.Replay != ReplayStart {
		return nil, fmt.Errorf("invalid replay mode %q (supported: end, start)", cfg.Replay)
	}

	return cfg, nil
}

// Validate checks that the values the bridge cannot run without are set.
// Called by the run command, not Load, so list/check work on partial config.
func (c *Config) Validate() error {
	if c.ClaudeToken == "" {
		return fmt.Errorf("claude bot token is required. Set PANETONE_TOKEN_CLAUDE or claude_token in the config file")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("forum group chat id is required. Set PANETONE_CHAT or chat_id in the config file")
	}
	return nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	// 1. Current directory
	if data, err := os.ReadFile(".panetone.yaml"); err == nil {
		return ".panetone.yaml", data, nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "panetone", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.ClaudeToken != "" {
		cfg.ClaudeToken = file.ClaudeToken
	}
	if file.CodexToken != "" {
		cfg.CodexToken = file.CodexToken
	}
	if file.ChatID != 0 {
		cfg.ChatID = file.ChatID
	}
	if file.OwnerID != 0 {
		cfg.OwnerID = file.OwnerID
	}
	if file.Poll != "" {
		cfg.Poll = file.Poll
	}
	if file.Replay != "" {
		cfg.Replay = file.Replay
	}
	if file.Mux != "" {
		cfg.Mux = file.Mux
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("PANETONE_TOKEN_CLAUDE"); v != "" {
		cfg.ClaudeToken = v
	}
	if v := os.Getenv("PANETONE_TOKEN_CODEX"); v != "" {
		cfg.CodexToken = v
	}
	if v := os.Getenv("PANETONE_CHAT"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ChatID = id
		}
	}
	if v := os.Getenv("PANETONE_OWNER"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.OwnerID = id
		}
	}
	if v := os.Getenv("PANETONE_POLL"); v != "" {
		cfg.Poll = v
	}
	if v := os.Getenv("PANETONE_REPLAY"); v != "" {
		cfg.Replay = v
	}
	if v := os.Getenv("PANETONE_MUX"); v != "" {
		cfg.Mux = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
}
