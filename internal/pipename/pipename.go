// Package pipename maps opaque pipe names to the OS-visible endpoints the
// platform drivers understand: unix domain socket paths on Unix, \\.\pipe\
// paths on Windows. Callers may also pass explicit unix:// or npipe://
// endpoints, which pass through unchanged apart from scheme stripping.
package pipename

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	unixScheme  = "unix://"
	npipeScheme = "npipe://"

	socketSuffix  = ".sock"
	runtimeSubdir = "pipelink"

	windowsPipePrefix = `\\.\pipe\`
)

// SocketPath returns the unix socket path for a pipe name. Explicit
// unix:// endpoints and names that already contain a path separator are
// taken as paths; bare names land in the per-user runtime directory.
func SocketPath(name string) string {
	if strings.HasPrefix(name, unixScheme) {
		return strings.TrimPrefix(name, unixScheme)
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		return name
	}
	return filepath.Join(runtimeDir(), name+socketSuffix)
}

// runtimeDir prefers XDG_RUNTIME_DIR and falls back to the system temp
// directory. Socket paths must stay short (104 byte limit on macOS), so no
// deeper nesting than one subdirectory.
func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, runtimeSubdir)
	}
	return filepath.Join(os.TempDir(), runtimeSubdir)
}

// PipePath returns the Windows named pipe path for a pipe name.
// Accepts bare names, npipe:// endpoints and already-qualified
// \\.\pipe\ paths.
func PipePath(name string) string {
	name = strings.TrimPrefix(name, npipeScheme)
	name = strings.TrimLeft(name, "/")
	if strings.HasPrefix(name, windowsPipePrefix) {
		return name
	}
	// npipe:////./pipe/name arrives here as ./pipe/name
	name = strings.TrimPrefix(name, "./pipe/")
	return windowsPipePrefix + strings.ReplaceAll(name, "/", "-")
}

// Unique returns a pipe name that will not collide across processes or
// test runs.
func Unique(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
