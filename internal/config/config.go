// Package config loads shelf's settings from defaults, an optional YAML
// file, and SHELF_* environment variables, in that order.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/natefinch/atomic"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/metcalfc/shelf/internal/kv"
	"github.com/metcalfc/shelf/internal/state"
)

// EnvPrefix prefixes environment overrides. A double underscore descends
// into a section: SHELF_STORAGE__BACKEND sets storage.backend.
const EnvPrefix = "SHELF_"

// FileName is the config file inside the config directory.
const FileName = "config.yml"

// Config is the top-level configuration, corresponding to config.yml.
type Config struct {
	Storage     StorageConfig `yaml:"storage" koanf:"storage"`
	BundledDir  string        `yaml:"bundled_dir" koanf:"bundled_dir"`
	Concurrency int           `yaml:"concurrency" koanf:"concurrency"`
	Log         LogConfig     `yaml:"log" koanf:"log"`
}

// StorageConfig selects where reader state is kept.
type StorageConfig struct {
	Backend kv.Backend  `yaml:"backend" koanf:"backend"`
	Dir     string      `yaml:"dir" koanf:"dir"`
	Path    string      `yaml:"path,omitempty" koanf:"path"`
	Quota   int         `yaml:"quota,omitempty" koanf:"quota"`
	Redis   RedisConfig `yaml:"redis,omitempty" koanf:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" koanf:"addr"`
	Password string `yaml:"password,omitempty" koanf:"password"`
	DB       int    `yaml:"db,omitempty" koanf:"db"`
	Prefix   string `yaml:"prefix,omitempty" koanf:"prefix"`
}

// LogConfig controls the structured log.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
	// File receives log lines. "-" means stderr.
	File string `yaml:"file" koanf:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	stateDir := state.StateDir()
	return &Config{
		Storage: StorageConfig{
			Backend: kv.BackendFile,
			Dir:     stateDir,
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "shelf:"},
		},
		BundledDir:  filepath.Join(dataDir(), "novels"),
		Concurrency: 1,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(stateDir, "shelf.log"),
		},
	}
}

// DefaultPath returns XDG_CONFIG_HOME/shelf/config.yml or
// ~/.config/shelf/config.yml
func DefaultPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "shelf", FileName)
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validBackends = map[kv.Backend]bool{
	kv.BackendMemory: true,
	kv.BackendFile:   true,
	kv.BackendSQLite: true,
	kv.BackendRedis:  true,
}

var validFormats = map[string]bool{"text": true, "json": true}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("invalid storage.backend %q: must be one of memory, file, sqlite, redis", c.Storage.Backend)
	}
	switch c.Storage.Backend {
	case kv.BackendFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case kv.BackendSQLite:
		if c.Storage.Dir == "" && c.Storage.Path == "" {
			return fmt.Errorf("storage.dir or storage.path is required for the sqlite backend")
		}
	case kv.BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	}
	if c.Storage.Quota < 0 {
		return fmt.Errorf("storage.quota must be non-negative")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// StoreOptions converts the storage section for kv.Open.
func (c *Config) StoreOptions() kv.Options {
	return kv.Options{
		Backend: c.Storage.Backend,
		Dir:     c.Storage.Dir,
		Path:    c.Storage.Path,
		Quota:   c.Storage.Quota,
		Redis: kv.RedisOptions{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
			Prefix:   c.Storage.Redis.Prefix,
		},
	}
}

func dataDir() string { return filepath.Join(xdgDir("XDG_DATA_HOME", ".local/share"), "shelf") }

func xdgDir(key, fallback string) string {
	if dir := os.Getenv(key); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", filepath.FromSlash(fallback))
	}
	return filepath.Join(home, filepath.FromSlash(fallback))
}
