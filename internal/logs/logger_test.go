package logs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"pipelink-go/internal/config"
)

func TestSetupLogger_ConsoleOnly(t *testing.T) {
	cfg := config.DefaultConfig().Log
	cfg.EnableConsole = true
	cfg.EnableFile = false

	logger, err := SetupLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("console logging works")
}

func TestSetupLogger_FileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig().Log
	cfg.EnableConsole = false
	cfg.EnableFile = true
	cfg.LogDir = dir
	cfg.Filename = "test.log"

	logger, err := SetupLogger(cfg)
	require.NoError(t, err)
	logger.Info("file logging works")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "file logging works")
}

func TestSetupLogger_NoOutputsFails(t *testing.T) {
	cfg := config.DefaultConfig().Log
	cfg.EnableConsole = false
	cfg.EnableFile = false

	_, err := SetupLogger(cfg)
	require.Error(t, err)
}

func TestGetLogFilePathWithDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	path, err := GetLogFilePathWithDir(dir, "main.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "main.log"), path)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSetupCommandLogger_Defaults(t *testing.T) {
	logger, err := SetupCommandLogger(true, "", false, "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = SetupCommandLogger(false, "", false, "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}
