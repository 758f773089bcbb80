package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	perrors "wooden_dutch/errors"
)

// DefaultPath is where the optional JSON config file is looked up.
const DefaultPath = "config/config.json"

// LLMConfig selects and configures the generative text provider.
type LLMConfig struct {
	Provider    string  `json:"provider"` // openai | deepseek | anthropic | mock
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// GhostConfig holds the CMS admin API settings.
type GhostConfig struct {
	URL           string `json:"url"`
	AdminAPIKey   string `json:"admin_api_key"` // "<id>:<hex secret>"
	AutoPublish   bool   `json:"auto_publish"`
	AssignAuthors bool   `json:"assign_authors"`
}

// ImageConfig configures the optional feature-image generator.
type ImageConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
}

// SchedulerConfig configures the unattended batch daemon.
type SchedulerConfig struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
	Count    int    `json:"count"`
}

// Config is the full application configuration.
type Config struct {
	LLM         LLMConfig       `json:"llm"`
	Ghost       GhostConfig     `json:"ghost"`
	Image       ImageConfig     `json:"image"`
	Scheduler   SchedulerConfig `json:"scheduler"`
	ServerAddr  string          `json:"server_addr"`
	DataDir     string          `json:"data_dir"`
	MetricsFile string          `json:"metrics_file"`
	LogLevel    string          `json:"log_level"`
	LogFormat   string          `json:"log_format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			MaxTokens:   4096,
			Temperature: 0.9,
		},
		Ghost: GhostConfig{
			URL: "http://localhost:2368",
		},
		Image: ImageConfig{
			Model: "gpt-image-1",
		},
		Scheduler: SchedulerConfig{
			Cron:     "0 8 * * 1,3,5",
			Timezone: "Australia/Sydney",
			Count:    1,
		},
		ServerAddr: ":8080",
		DataDir:    "data",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load builds a Config from defaults, the JSON file at path (if it exists)
// and finally environment variables. An explicitly requested path that does
// not exist is an error; the default path is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, perrors.NewConfig(fmt.Sprintf("parse %s: %v", path, err))
		}
	case stderrors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, perrors.NewConfig(fmt.Sprintf("read %s: %v", path, err))
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.Provider = GetEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = GetEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = GetEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.MaxTokens = GetEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)

	key := GetEnv("LLM_API_KEY", c.LLM.APIKey)
	if key == "" {
		switch strings.ToLower(c.LLM.Provider) {
		case "anthropic":
			key = GetEnv("ANTHROPIC_API_KEY", "")
		default:
			key = GetEnv("OPENAI_API_KEY", "")
		}
	}
	c.LLM.APIKey = key

	c.Ghost.URL = GetEnv("GHOST_URL", c.Ghost.URL)
	c.Ghost.AdminAPIKey = GetEnv("GHOST_ADMIN_API_KEY", c.Ghost.AdminAPIKey)
	c.Ghost.AutoPublish = GetEnvBool("AUTO_PUBLISH", c.Ghost.AutoPublish)
	c.Ghost.AssignAuthors = GetEnvBool("GHOST_ASSIGN_AUTHORS", c.Ghost.AssignAuthors)

	c.Image.APIKey = GetEnv("IMAGE_API_KEY", c.Image.APIKey)
	c.Image.Model = GetEnv("IMAGE_MODEL", c.Image.Model)
	c.Image.BaseURL = GetEnv("IMAGE_BASE_URL", c.Image.BaseURL)

	c.Scheduler.Cron = GetEnv("CRON_SCHEDULE", c.Scheduler.Cron)
	c.Scheduler.Timezone = GetEnv("CRON_TIMEZONE", c.Scheduler.Timezone)
	c.Scheduler.Count = GetEnvInt("CRON_COUNT", c.Scheduler.Count)

	c.ServerAddr = GetEnv("SERVER_ADDR", c.ServerAddr)
	c.DataDir = GetEnv("DATA_DIR", c.DataDir)
	c.MetricsFile = GetEnv("METRICS_FILE", c.MetricsFile)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = GetEnv("LOG_FORMAT", c.LogFormat)
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Ghost.URL = strings.TrimRight(strings.TrimSpace(c.Ghost.URL), "/")
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.Scheduler.Count <= 0 {
		c.Scheduler.Count = 1
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
}

// RequireLLM verifies the generative service is usable.
func (c *Config) RequireLLM() error {
	switch c.LLM.Provider {
	case "mock":
		return nil
	case "openai", "anthropic":
	case "deepseek":
		if c.LLM.BaseURL == "" {
			return perrors.NewConfig("LLM_BASE_URL is required for the deepseek provider")
		}
	default:
		return perrors.NewConfig(fmt.Sprintf("unsupported LLM_PROVIDER %q (use openai, deepseek, anthropic or mock)", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		return perrors.NewConfig("LLM_API_KEY is not set")
	}
	if c.LLM.Model == "" {
		return perrors.NewConfig("LLM_MODEL is not set")
	}
	return nil
}

// RequireGhost verifies the CMS credentials are present and well formed.
func (c *Config) RequireGhost() error {
	if c.Ghost.URL == "" {
		return perrors.NewConfig("GHOST_URL is not set")
	}
	if c.Ghost.AdminAPIKey == "" {
		return perrors.NewConfig("GHOST_ADMIN_API_KEY is not set")
	}
	id, secret, ok := strings.Cut(c.Ghost.AdminAPIKey, ":")
	if !ok || id == "" || secret == "" {
		return perrors.NewConfig("GHOST_ADMIN_API_KEY must have the form <id>:<secret>")
	}
	return nil
}

// ImageEnabled reports whether a feature image should be attempted.
func (c *Config) ImageEnabled() bool {
	return c.Image.APIKey != ""
}

// Path helpers for the data directory layout.

func (c *Config) DraftsDir() string   { return filepath.Join(c.DataDir, "drafts") }
func (c *Config) TopicsFile() string  { return filepath.Join(c.DataDir, "topics-used.json") }
func (c *Config) AuthorsFile() string { return filepath.Join(c.DataDir, "authors-recent.json") }
