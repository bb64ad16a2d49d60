package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.haven/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8098
// store:
//   sqlite_path: ~/.haven/haven.db
//   redis_addr: 127.0.0.1:6379
// memory:
//   window_size: 15
//   session_ttl_minutes: 30
//   attachment_ttl_minutes: 10
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Memory   MemoryConfig   `yaml:"memory"`
	Fallback FallbackConfig `yaml:"fallback"`
	Speech   SpeechConfig   `yaml:"speech"`
	Vision   VisionConfig   `yaml:"vision"`
	Models   ModelsConfig   `yaml:"models"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type StoreConfig struct {
	SQLitePath *string `yaml:"sqlite_path"`
	RedisAddr  *string `yaml:"redis_addr"`
	RedisDB    *int    `yaml:"redis_db"`
}

type MemoryConfig struct {
	WindowSize           *int `yaml:"window_size"`
	SessionTTLMinutes    *int `yaml:"session_ttl_minutes"`
	AttachmentTTLMinutes *int `yaml:"attachment_ttl_minutes"`
}

type FallbackConfig struct {
	TierTimeoutSeconds *int `yaml:"tier_timeout_seconds"`
}

// SpeechConfig points at the external speech collaborators.
// STTURL is the fast remote transcription API, LocalSTTURL a slower
// self-hosted engine used as the second tier. TTSURL is the voice
// synthesis server.
type SpeechConfig struct {
	STTURL      string `yaml:"stt_url"`
	STTAPIKey   string `yaml:"stt_api_key"`
	LocalSTTURL string `yaml:"local_stt_url"`
	TTSURL      string `yaml:"tts_url"`
}

// VisionConfig points at the image collaborators: the risk classifier
// inference server and the OCR+redaction extraction service.
type VisionConfig struct {
	ClassifyURL string `yaml:"classify_url"`
	ExtractURL  string `yaml:"extract_url"`
}

// ModelConfig describes one chat model tier.
type ModelConfig struct {
	Provider string `yaml:"provider"` // google, ollama, openai, custom
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// ModelsConfig declares the generation chain: Primary is tried first,
// Secondary on failure. Summary defaults to Primary when unset.
type ModelsConfig struct {
	Primary   *ModelConfig `yaml:"primary"`
	Secondary *ModelConfig `yaml:"secondary"`
	Summary   *ModelConfig `yaml:"summary"`
}

type CleanupConfig struct {
	Schedule *string `yaml:"schedule"`
}

const (
	DefaultHost                 = "127.0.0.1"
	DefaultPort                 = 8098
	DefaultRedisAddr            = "127.0.0.1:6379"
	DefaultWindowSize           = 15
	DefaultSessionTTLMinutes    = 30
	DefaultAttachmentTTLMinutes = 10
	DefaultTierTimeoutSeconds   = 8
	DefaultCleanupSchedule      = "0 * * * *"
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".haven")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.haven/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	if n := cfg.WindowSize(); n < 1 {
		return nil, "", fmt.Errorf("invalid memory.window_size %d in %s", n, configFile)
	}

	return cfg, configFile, nil
}

func (c *AppConfig) Host() string {
	if c.Server.Host != nil {
		return *c.Server.Host
	}
	return DefaultHost
}

func (c *AppConfig) Port() int {
	if c.Server.Port != nil {
		return *c.Server.Port
	}
	return DefaultPort
}

func (c *AppConfig) SQLitePath() string {
	if c.Store.SQLitePath != nil && *c.Store.SQLitePath != "" {
		return *c.Store.SQLitePath
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "haven.db"
	}
	return filepath.Join(configDir, "haven.db")
}

func (c *AppConfig) RedisAddr() string {
	if c.Store.RedisAddr != nil && *c.Store.RedisAddr != "" {
		return *c.Store.RedisAddr
	}
	return DefaultRedisAddr
}

func (c *AppConfig) RedisDB() int {
	if c.Store.RedisDB != nil {
		return *c.Store.RedisDB
	}
	return 0
}

func (c *AppConfig) WindowSize() int {
	if c.Memory.WindowSize != nil {
		return *c.Memory.WindowSize
	}
	return DefaultWindowSize
}

func (c *AppConfig) SessionTTL() time.Duration {
	minutes := DefaultSessionTTLMinutes
	if c.Memory.SessionTTLMinutes != nil {
		minutes = *c.Memory.SessionTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (c *AppConfig) AttachmentTTL() time.Duration {
	minutes := DefaultAttachmentTTLMinutes
	if c.Memory.AttachmentTTLMinutes != nil {
		minutes = *c.Memory.AttachmentTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (c *AppConfig) TierTimeout() time.Duration {
	seconds := DefaultTierTimeoutSeconds
	if c.Fallback.TierTimeoutSeconds != nil {
		seconds = *c.Fallback.TierTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

func (c *AppConfig) CleanupSchedule() string {
	if c.Cleanup.Schedule != nil && *c.Cleanup.Schedule != "" {
		return *c.Cleanup.Schedule
	}
	return DefaultCleanupSchedule
}

// SummaryModel returns the model used by the session summarizer,
// falling back to the primary generation model.
func (c *AppConfig) SummaryModel() *ModelConfig {
	if c.Models.Summary != nil {
		return c.Models.Summary
	}
	return c.Models.Primary
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat config file %s: %w", configFile, err)
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	content := fmt.Sprintf(`server:
  host: %s
  port: %d
store:
  redis_addr: %s
memory:
  window_size: %d
  session_ttl_minutes: %d
  attachment_ttl_minutes: %d
fallback:
  tier_timeout_seconds: %d
`, DefaultHost, DefaultPort, DefaultRedisAddr, DefaultWindowSize,
		DefaultSessionTTLMinutes, DefaultAttachmentTTLMinutes, DefaultTierTimeoutSeconds)

	if err := os.WriteFile(configFile, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write default config %s: %w", configFile, err)
	}

	return configFile, nil
}
