package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chocolzs/linkura-go/internal/config"
)

// profileFile is the user-level overlay applied on top of the stock
// defaults. Every key is optional; absent keys leave the default in place.
type profileFile struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	ClientVersion  string `toml:"client_version"`
	ResVersion     string `toml:"res_version"`
	DeviceType     string `toml:"device_type"`
	RequestTimeout string `toml:"request_timeout"`
	DataDir        string `toml:"data_dir"`
	QuietTimeout   string `toml:"quiet_timeout"`
	MaxAttempts    int    `toml:"live_max_connect_attempts"`
	StorePath      string `toml:"store_path"`
}

func defaultProfilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "linkura-cli", "profile.toml"), nil
}

// applyProfile overlays the profile file at path onto cfg. A missing file
// is not an error; the defaults stand.
func applyProfile(cfg *config.AppConfig, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read profile: %w", err)
	}

	var raw profileFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", path, err)
	}

	if meta.IsDefined("base_url") && strings.TrimSpace(raw.BaseURL) != "" {
		cfg.API.BaseURL = strings.TrimSpace(raw.BaseURL)
	}
	if meta.IsDefined("api_key") {
		cfg.API.APIKey = strings.TrimSpace(raw.APIKey)
	}
	if meta.IsDefined("client_version") && strings.TrimSpace(raw.ClientVersion) != "" {
		cfg.API.ClientVersion = strings.TrimSpace(raw.ClientVersion)
	}
	if meta.IsDefined("res_version") && strings.TrimSpace(raw.ResVersion) != "" {
		cfg.API.ResVersion = strings.TrimSpace(raw.ResVersion)
	}
	if meta.IsDefined("device_type") && strings.TrimSpace(raw.DeviceType) != "" {
		cfg.API.DeviceType = strings.TrimSpace(raw.DeviceType)
	}
	if meta.IsDefined("request_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RequestTimeout))
		if err != nil {
			return fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.API.TimeoutSeconds = int(d / time.Second)
	}
	if meta.IsDefined("data_dir") && strings.TrimSpace(raw.DataDir) != "" {
		cfg.Live.DataDir = strings.TrimSpace(raw.DataDir)
	}
	if meta.IsDefined("quiet_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.QuietTimeout))
		if err != nil {
			return fmt.Errorf("parse quiet_timeout: %w", err)
		}
		cfg.Live.QuietTimeoutSeconds = int(d / time.Second)
	}
	if meta.IsDefined("live_max_connect_attempts") {
		cfg.Live.MaxConnectAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("store_path") {
		cfg.Store.Path = strings.TrimSpace(raw.StorePath)
	}
	return config.ValidateAppConfig(*cfg)
}
