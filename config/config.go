package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	SignerMock     = "mock"
	SignerAutogram = "autogram"
)

type Config struct {
	App AppConfig `toml:"app"`
	AGP AGPConfig `toml:"agp"`
	DA  DAConfig  `toml:"da"`
}

type AppConfig struct {
	LogLevel string `toml:"log_level"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type AGPConfig struct {
	Host           string         `toml:"host"`
	Port           int            `toml:"port"`
	BaseURL        string         `toml:"base_url"`
	APIKey         string         `toml:"api_key"`
	SignerMode     string         `toml:"signer_mode"`
	AutogramSDKURL string         `toml:"autogram_sdk_url"`
	FrameAncestors string         `toml:"frame_ancestors"`
	Database       DatabaseConfig `toml:"database"`
}

type DAConfig struct {
	Host          string         `toml:"host"`
	Port          int            `toml:"port"`
	BaseURL       string         `toml:"base_url"`
	AGPURL        string         `toml:"agp_url"`
	APIKey        string         `toml:"api_key"`
	InlineContent bool           `toml:"inline_content"`
	SeedDocuments bool           `toml:"seed_documents"`
	Database      DatabaseConfig `toml:"database"`
}

// Load builds the configuration from defaults, an optional TOML file and the environment.
// An empty path falls back to CONFIG_FILE; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = getEnv("CONFIG_FILE", "")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config file failed: %w", err)
			}
		}
	}

	overrideByEnv(cfg)
	return cfg, nil
}

func (c *AGPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *DAConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports settings the AGP server cannot run without.
func (c *AGPConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("AGP_API_KEY is not set")
	}
	if c.SignerMode != SignerMock && c.SignerMode != SignerAutogram {
		return fmt.Errorf("unknown signer mode %q", c.SignerMode)
	}
	return nil
}

// Validate reports settings the DA server cannot run without.
func (c *DAConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("AGP_API_KEY is not set")
	}
	if c.AGPURL == "" {
		return errors.New("AGP_URL is not set")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: "info",
		},
		AGP: AGPConfig{
			Host:           "0.0.0.0",
			Port:           3001,
			BaseURL:        "http://localhost:3001",
			SignerMode:     SignerMock,
			AutogramSDKURL: "https://cdn.jsdelivr.net/npm/autogram-sdk/dist/index.js",
			FrameAncestors: "*",
			Database: DatabaseConfig{
				Driver: "sqlite3",
				DSN:    ":memory:",
			},
		},
		DA: DAConfig{
			Host:          "0.0.0.0",
			Port:          3002,
			BaseURL:       "http://localhost:3002",
			AGPURL:        "http://localhost:3001",
			SeedDocuments: true,
			Database: DatabaseConfig{
				Driver: "sqlite3",
				DSN:    ":memory:",
			},
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)

	cfg.AGP.Host = getEnv("AGP_HOST", cfg.AGP.Host)
	cfg.AGP.Port = getEnvAsInt("AGP_PORT", cfg.AGP.Port)
	cfg.AGP.BaseURL = strings.TrimRight(getEnv("BASE_URL", cfg.AGP.BaseURL), "/")
	cfg.AGP.APIKey = getEnv("AGP_API_KEY", cfg.AGP.APIKey)
	cfg.AGP.SignerMode = getEnv("AGP_SIGNER_MODE", cfg.AGP.SignerMode)
	cfg.AGP.AutogramSDKURL = getEnv("AUTOGRAM_SDK_URL", cfg.AGP.AutogramSDKURL)
	cfg.AGP.FrameAncestors = getEnv("AGP_FRAME_ANCESTORS", cfg.AGP.FrameAncestors)
	cfg.AGP.Database.Driver = getEnv("AGP_DB_DRIVER", cfg.AGP.Database.Driver)
	cfg.AGP.Database.DSN = getEnv("AGP_DB_DSN", cfg.AGP.Database.DSN)

	cfg.DA.Host = getEnv("DA_HOST", cfg.DA.Host)
	cfg.DA.Port = getEnvAsInt("DA_PORT", cfg.DA.Port)
	cfg.DA.BaseURL = strings.TrimRight(getEnv("DA_BASE_URL", cfg.DA.BaseURL), "/")
	cfg.DA.AGPURL = strings.TrimRight(getEnv("AGP_URL", cfg.DA.AGPURL), "/")
	// Both servers share the key the DA presents to the AGP.
	cfg.DA.APIKey = getEnv("AGP_API_KEY", cfg.DA.APIKey)
	cfg.DA.InlineContent = getEnvAsBool("DA_INLINE_CONTENT", cfg.DA.InlineContent)
	cfg.DA.SeedDocuments = getEnvAsBool("DA_SEED_DOCUMENTS", cfg.DA.SeedDocuments)
	cfg.DA.Database.Driver = getEnv("DA_DB_DRIVER", cfg.DA.Database.Driver)
	cfg.DA.Database.DSN = getEnv("DA_DB_DSN", cfg.DA.Database.DSN)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return parsed
}
