package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppConfigFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkura.toml")
	if err := os.WriteFile(path, []byte("[api]\napi_key = \"k\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.APIKey != "k" {
		t.Fatalf("api key = %q", cfg.API.APIKey)
	}
	if cfg.API.BaseURL != DefaultBaseURL || cfg.API.ClientVersion != DefaultClientVersion {
		t.Fatalf("defaults not applied: %+v", cfg.API)
	}
	if cfg.Live.DataDir != "data" {
		t.Fatalf("live defaults not applied: %+v", cfg.Live)
	}
}

func TestLoadAppConfigRejectsBadBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkura.toml")
	if err := os.WriteFile(path, []byte("[api]\nbase_url = \"ftp://nope\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAppConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	if _, err := LoadAppConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected load error")
	}
}

func TestWriteTemplateRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkura.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatal("expected overwrite refusal")
	}
	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Fatalf("template base url = %q", cfg.API.BaseURL)
	}
}
