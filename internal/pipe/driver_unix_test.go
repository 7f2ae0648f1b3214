//go:build linux || darwin

package pipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelink-go/internal/pipename"
)

func TestUnixDriver_StaleSocketCleanup(t *testing.T) {
	name := pipename.Unique("pltest-stale")
	path := pipename.SocketPath(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))

	// A leftover plain file at the socket path, as a crashed process would
	// leave behind.
	f, err := os.Create(path)
	require.NoError(t, err)
	f.Close()

	p := New()
	require.NoError(t, p.CreateNewPipe(name, true), "stale socket must be reclaimed")
	defer p.Close()
	assert.True(t, p.IsOpen())
}

func TestUnixDriver_SocketPermissions(t *testing.T) {
	name := pipename.Unique("pltest-perm")

	p := New()
	require.NoError(t, p.CreateNewPipe(name, true))
	defer p.Close()

	info, err := os.Stat(pipename.SocketPath(name))
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode()&os.ModeSocket)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestUnixDriver_SocketRemovedOnClose(t *testing.T) {
	name := pipename.Unique("pltest-rm")
	path := pipename.SocketPath(name)

	p := New()
	require.NoError(t, p.CreateNewPipe(name, true))
	require.NoError(t, p.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket file should be removed on close")
}
