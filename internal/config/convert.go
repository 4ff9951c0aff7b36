package config

import (
	"time"

	"github.com/chocolzs/linkura-go/internal/live"
	"github.com/chocolzs/linkura-go/internal/transport"
)

func HTTPConfig(cfg APIConfig) transport.HTTPConfig {
	return transport.HTTPConfig{
		BaseURL:       cfg.BaseURL,
		APIKey:        cfg.APIKey,
		ClientVersion: cfg.ClientVersion,
		ResVersion:    cfg.ResVersion,
		DeviceType:    cfg.DeviceType,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func CaptureConfig(cfg LiveConfig) live.Config {
	return live.Config{
		DataDir:            cfg.DataDir,
		QuietTimeout:       time.Duration(cfg.QuietTimeoutSeconds) * time.Second,
		MaxConnectAttempts: cfg.MaxConnectAttempts,
	}
}
