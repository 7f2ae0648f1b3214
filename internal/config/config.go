// Package config holds pipelink's configuration: defaults, validation, and
// loading from a config file plus PIPELINK_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the per-user directory searched for config files.
	DefaultConfigDir = ".pipelink"
	// ConfigFileName is the base name (without extension) of the config file.
	ConfigFileName = "config"

	envPrefix = "PIPELINK"
)

// Config is the root configuration.
type Config struct {
	Pipe *PipeConfig `mapstructure:"pipe" json:"pipe"`
	Log  *LogConfig  `mapstructure:"log" json:"log"`
}

// PipeConfig tunes pipe I/O behavior for the CLI.
type PipeConfig struct {
	// BufferSize is the chunk size used when pumping data through a pipe.
	BufferSize int `mapstructure:"buffer_size" json:"buffer_size"`
	// IOTimeout bounds each individual read/write call. Zero means no
	// deadline.
	IOTimeout time.Duration `mapstructure:"io_timeout" json:"io_timeout"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level         string `mapstructure:"level" json:"level"`
	EnableFile    bool   `mapstructure:"enable_file" json:"enable_file"`
	EnableConsole bool   `mapstructure:"enable_console" json:"enable_console"`
	Filename      string `mapstructure:"filename" json:"filename"`
	LogDir        string `mapstructure:"log_dir" json:"log_dir"`
	MaxSize       int    `mapstructure:"max_size" json:"max_size"` // megabytes
	MaxBackups    int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge        int    `mapstructure:"max_age" json:"max_age"` // days
	Compress      bool   `mapstructure:"compress" json:"compress"`
	JSONFormat    bool   `mapstructure:"json_format" json:"json_format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Pipe: &PipeConfig{
			BufferSize: 32 * 1024,
			IOTimeout:  0,
		},
		Log: &LogConfig{
			Level:         "info",
			EnableFile:    false,
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
			JSONFormat:    false,
		},
	}
}

// Validate checks the configuration for values the rest of the program
// cannot work with.
func (c *Config) Validate() error {
	if c.Pipe == nil || c.Log == nil {
		return fmt.Errorf("incomplete configuration")
	}
	if c.Pipe.BufferSize <= 0 {
		return fmt.Errorf("pipe.buffer_size must be positive, got %d", c.Pipe.BufferSize)
	}
	if c.Pipe.IOTimeout < 0 {
		return fmt.Errorf("pipe.io_timeout must not be negative, got %s", c.Pipe.IOTimeout)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// Load reads configuration from the given file (or, when empty, from
// ~/.pipelink/config.{yaml,json} if present), applies PIPELINK_* environment
// overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults must be registered with viper (not only present in the
	// struct) for AutomaticEnv to pick the keys up during Unmarshal.
	v.SetDefault("pipe.buffer_size", cfg.Pipe.BufferSize)
	v.SetDefault("pipe.io_timeout", cfg.Pipe.IOTimeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.enable_file", cfg.Log.EnableFile)
	v.SetDefault("log.enable_console", cfg.Log.EnableConsole)
	v.SetDefault("log.filename", cfg.Log.Filename)
	v.SetDefault("log.log_dir", cfg.Log.LogDir)
	v.SetDefault("log.max_size", cfg.Log.MaxSize)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age", cfg.Log.MaxAge)
	v.SetDefault("log.compress", cfg.Log.Compress)
	v.SetDefault("log.json_format", cfg.Log.JSONFormat)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName(ConfigFileName)
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// No config file is fine; defaults + env apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
