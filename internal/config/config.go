package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultBaseURL       = "https://api.link-like-lovelive.app/v1"
	DefaultClientVersion = "3.1.0"
	DefaultResVersion    = "R2504300"
	DefaultDeviceType    = "android"
)

type AppConfig struct {
	API   APIConfig   `toml:"api"`
	Live  LiveConfig  `toml:"live"`
	Store StoreConfig `toml:"store"`
}

type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	ClientVersion  string `toml:"client_version"`
	ResVersion     string `toml:"res_version"`
	DeviceType     string `toml:"device_type"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type LiveConfig struct {
	DataDir             string `toml:"data_dir"`
	QuietTimeoutSeconds int    `toml:"quiet_timeout_seconds"`
	MaxConnectAttempts  int    `toml:"max_connect_attempts"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// DefaultAppConfig is the configuration used when no file is present.
func DefaultAppConfig() AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return cfg
}

func LoadAppConfig(path string) (AppConfig, error) {
	var cfg AppConfig
	if err := loadToml(path, &cfg); err != nil {
		return AppConfig{}, err
	}
	applyDefaults(&cfg)
	if err := ValidateAppConfig(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.ClientVersion == "" {
		cfg.API.ClientVersion = DefaultClientVersion
	}
	if cfg.API.ResVersion == "" {
		cfg.API.ResVersion = DefaultResVersion
	}
	if cfg.API.DeviceType == "" {
		cfg.API.DeviceType = DefaultDeviceType
	}
	if cfg.Live.DataDir == "" {
		cfg.Live.DataDir = "data"
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateAppConfig(cfg AppConfig) error {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return fmt.Errorf("config missing api.base_url")
	}
	if !strings.HasPrefix(cfg.API.BaseURL, "http://") && !strings.HasPrefix(cfg.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL: %s", cfg.API.BaseURL)
	}
	if cfg.API.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must not be negative")
	}
	if cfg.Live.QuietTimeoutSeconds < 0 {
		return fmt.Errorf("live.quiet_timeout_seconds must not be negative")
	}
	if cfg.Live.MaxConnectAttempts < 0 {
		return fmt.Errorf("live.max_connect_attempts must not be negative")
	}
	return nil
}
