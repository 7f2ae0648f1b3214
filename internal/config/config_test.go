package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 32*1024, cfg.Pipe.BufferSize)
	assert.Equal(t, time.Duration(0), cfg.Pipe.IOTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestValidate_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipe.BufferSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Pipe.IOTimeout = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pipe.BufferSize, cfg.Pipe.BufferSize)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"pipe:\n  buffer_size: 1024\n  io_timeout: 5s\nlog:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Pipe.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Pipe.IOTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, "main.log", cfg.Log.Filename)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PIPELINK_LOG_LEVEL", "warn")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_InvalidFileValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipe:\n  buffer_size: -1\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer_size")
}
