package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a starter config file with the stock defaults.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(appTemplate), 0o600)
}

const appTemplate = `[api]
base_url = "https://api.link-like-lovelive.app/v1"
api_key = ""
client_version = "3.1.0"
res_version = "R2504300"
device_type = "android"
timeout_seconds = 15

[live]
data_dir = "data"
quiet_timeout_seconds = 20
max_connect_attempts = 5

[store]
path = ""
`
