// Package config loads the voicegate configuration file.
//
// The file lives at os.UserConfigDir()/voicegate/config.yaml:
//
//	~/Library/Application Support/voicegate/config.yaml   (macOS)
//	~/.config/voicegate/config.yaml                       (Linux)
//
// Every value can be overridden by a VOICEGATE_* environment variable
// and again by the corresponding command-line flag.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-yaml"
)

const (
	appDir     = "voicegate"
	configFile = "config.yaml"
)

// Config holds the gateway's startup options.
type Config struct {
	// Listen is the inbound protocol listen address.
	Listen string `yaml:"listen"`

	// Upstream is the address of the real speech-to-text service.
	Upstream string `yaml:"upstream"`

	// Threshold is the minimum cosine similarity to accept a speaker.
	Threshold float64 `yaml:"threshold"`

	// Voiceprints locates the enrolled voiceprints: a directory path or
	// an s3://bucket/prefix URL.
	Voiceprints string `yaml:"voiceprints"`

	// Embedder is the external embedding command; EmbedderArgs its
	// arguments.
	Embedder     string   `yaml:"embedder"`
	EmbedderArgs []string `yaml:"embedder_args"`

	// Device selects the inference device passed to the embedder
	// ("cpu", "cuda", ...).
	Device string `yaml:"device"`

	// ModelDir is the embedder's model cache directory.
	ModelDir string `yaml:"model_dir"`

	// CacheDir enables the on-disk embedding cache when set.
	CacheDir string `yaml:"cache_dir"`

	// Monitor is the websocket monitor listen address; empty disables it.
	Monitor string `yaml:"monitor"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// AllowNoSpeakers lets the gateway start with an empty voiceprint
	// store, in which case every stream is rejected.
	AllowNoSpeakers bool `yaml:"allow_no_speakers"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Listen:    ":10400",
		Threshold: 0.45,
		LogLevel:  "info",
	}
}

// Path returns the default config file location.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, configFile), nil
}

// Load reads the config file at path, layered over the defaults, then
// applies VOICEGATE_* environment overrides. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Listen, "VOICEGATE_LISTEN")
	setString(&c.Upstream, "VOICEGATE_UPSTREAM")
	setString(&c.Voiceprints, "VOICEGATE_VOICEPRINTS")
	setString(&c.Embedder, "VOICEGATE_EMBEDDER")
	setString(&c.Device, "VOICEGATE_DEVICE")
	setString(&c.ModelDir, "VOICEGATE_MODEL_DIR")
	setString(&c.CacheDir, "VOICEGATE_CACHE_DIR")
	setString(&c.Monitor, "VOICEGATE_MONITOR")
	setString(&c.LogLevel, "VOICEGATE_LOG_LEVEL")
	if v := os.Getenv("VOICEGATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Threshold = f
		}
	}
	if v := os.Getenv("VOICEGATE_ALLOW_NO_SPEAKERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AllowNoSpeakers = b
		}
	}
}
