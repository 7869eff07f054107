package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	pebblestore "github.com/primlo/nibbana/internal/storage/pebble"
	logpkg "github.com/primlo/nibbana/pkg/log"
)

// Config is the CLI configuration loaded from file and env.
type Config struct {
	DataDir         string            `json:"dataDir" yaml:"dataDir"`
	Endpoint        string            `json:"endpoint" yaml:"endpoint"`
	SecretToken     string            `json:"secretToken" yaml:"secretToken"`
	Headers         map[string]string `json:"headers" yaml:"headers"`
	Capacity        int               `json:"capacity" yaml:"capacity"`
	UploadInterval  Duration          `json:"uploadInterval" yaml:"uploadInterval"`
	HTTPTimeout     Duration          `json:"httpTimeout" yaml:"httpTimeout"`
	CaptureFilter   string            `json:"captureFilter" yaml:"captureFilter"`
	OutputToConsole *bool             `json:"outputToConsole" yaml:"outputToConsole"`
	Fsync           string            `json:"fsync" yaml:"fsync"`
	MetricsAddr     string            `json:"metricsAddr" yaml:"metricsAddr"`
	LogLevel        string            `json:"logLevel" yaml:"logLevel"`
	LogFormat       string            `json:"logFormat" yaml:"logFormat"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:        DefaultDataDir(),
		Capacity:       1000,
		UploadInterval: Duration(5 * time.Minute),
		HTTPTimeout:    Duration(15 * time.Second),
		Fsync:          "always",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults. Fields missing from the file keep their default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Capacity < 0 {
		return errors.New("config: capacity must not be negative")
	}
	if c.UploadInterval < 0 {
		return errors.New("config: uploadInterval must not be negative")
	}
	if _, err := logpkg.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown logFormat %q", c.LogFormat)
	}
	if c.Fsync != "" && pebblestore.ParseFsyncMode(c.Fsync) == pebblestore.FsyncModeUnspecified {
		return fmt.Errorf("config: unknown fsync mode %q", c.Fsync)
	}
	return nil
}

// Duration is a time.Duration written as "30s" or "5m" in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		return d.set(x)
	case float64:
		// bare numbers are seconds
		*d = Duration(time.Duration(x * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
