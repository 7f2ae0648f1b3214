package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	osWindows = "windows"
	osDarwin  = "darwin"
	osLinux   = "linux"

	appName = "pipelink"
)

// GetLogDir returns the standard log directory for the current OS.
func GetLogDir() (string, error) {
	switch runtime.GOOS {
	case osWindows:
		return getWindowsLogDir()
	case osDarwin:
		return getMacOSLogDir()
	case osLinux:
		return getLinuxLogDir()
	default:
		return getDefaultLogDir()
	}
}

// getWindowsLogDir uses %LOCALAPPDATA%\pipelink\logs.
func getWindowsLogDir() (string, error) {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return getDefaultLogDir()
		}
		localAppData = filepath.Join(userProfile, "AppData", "Local")
	}
	return filepath.Join(localAppData, appName, "logs"), nil
}

// getMacOSLogDir uses ~/Library/Logs/pipelink.
func getMacOSLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return getDefaultLogDir()
	}
	return filepath.Join(homeDir, "Library", "Logs", appName), nil
}

// getLinuxLogDir uses XDG_STATE_HOME (default ~/.local/state), or
// /var/log/pipelink when running as root.
func getLinuxLogDir() (string, error) {
	if os.Getuid() == 0 {
		return filepath.Join("/var/log", appName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return getDefaultLogDir()
	}
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, appName, "logs"), nil
}

func getDefaultLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "logs"), nil
	}
	return filepath.Join(homeDir, "."+appName, "logs"), nil
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir(logDir string) error {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("cannot create log directory %s: %w", logDir, err)
	}
	return nil
}

// GetLogFilePath returns the full path of a log file in the standard
// directory, creating the directory when necessary.
func GetLogFilePath(filename string) (string, error) {
	return GetLogFilePathWithDir("", filename)
}

// GetLogFilePathWithDir is GetLogFilePath with an optional directory
// override.
func GetLogFilePathWithDir(logDir, filename string) (string, error) {
	dir := logDir
	if dir == "" {
		var err error
		dir, err = GetLogDir()
		if err != nil {
			return "", err
		}
	}
	if err := EnsureLogDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}
