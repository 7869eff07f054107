package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays NIBBANA_* environment variables onto cfg. Unparsable
// values are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("NIBBANA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NIBBANA_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("NIBBANA_SECRET_TOKEN"); v != "" {
		cfg.SecretToken = v
	}
	if v := os.Getenv("NIBBANA_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Capacity = n
		}
	}
	if v := os.Getenv("NIBBANA_UPLOAD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.UploadInterval = Duration(d)
		}
	}
	if v := os.Getenv("NIBBANA_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = Duration(d)
		}
	}
	if v := os.Getenv("NIBBANA_CAPTURE_FILTER"); v != "" {
		cfg.CaptureFilter = v
	}
	if v := os.Getenv("NIBBANA_OUTPUT_TO_CONSOLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OutputToConsole = &b
		}
	}
	if v := os.Getenv("NIBBANA_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("NIBBANA_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("NIBBANA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NIBBANA_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	// NIBBANA_HEADERS is a comma separated list of name=value pairs.
	if v := os.Getenv("NIBBANA_HEADERS"); v != "" {
		cfg.Headers = map[string]string{}
		for _, p := range strings.Split(v, ",") {
			k, val, ok := strings.Cut(strings.TrimSpace(p), "=")
			if ok && k != "" {
				cfg.Headers[k] = val
			}
		}
	}
}
