//go:build linux || darwin

package pipe

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pipelink-go/internal/pipename"
)

// probeTimeout bounds the dial used to tell an active pipe owner from a
// stale socket file left by a crashed process.
const probeTimeout = 1 * time.Second

// unixDriver backs named pipes with unix domain sockets. The pipe name maps
// to a socket path via pipename.SocketPath; the creating side listens, the
// opening side dials. Connecting peers are verified to belong to the current
// user (SO_PEERCRED on Linux, LOCAL_PEERCRED on macOS).
type unixDriver struct {
	logger *zap.Logger
}

func newPlatformDriver(logger *zap.Logger) Driver {
	return &unixDriver{logger: logger}
}

func (d *unixDriver) Open(name string, asServer, mustNotExist bool) (Handle, error) {
	path := pipename.SocketPath(name)
	if !asServer {
		conn, err := net.DialTimeout("unix", path, probeTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPipeNotFound, name)
		}
		return newClientEndpoint(name, conn, d.logger), nil
	}
	return d.listen(name, path, mustNotExist)
}

func (d *unixDriver) listen(name, path string, mustNotExist bool) (Handle, error) {
	ln, err := d.tryListen(path)
	if err == nil {
		return d.serverEndpoint(name, path, ln), nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, fmt.Errorf("pipe %q: listen: %w", name, err)
	}

	// A socket file already exists under this name. A dial that succeeds
	// means an active owner; a dial that fails means a stale leftover.
	conn, derr := net.DialTimeout("unix", path, probeTimeout)
	if derr == nil {
		if mustNotExist {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrPipeExists, name)
		}
		d.logger.Debug("joining active pipe as client",
			zap.String("pipe", name), zap.String("path", path))
		return newClientEndpoint(name, conn, d.logger), nil
	}

	d.logger.Debug("removing stale pipe socket",
		zap.String("pipe", name), zap.String("path", path))
	if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
		return nil, fmt.Errorf("pipe %q: remove stale socket: %w", name, rerr)
	}
	ln, err = d.tryListen(path)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			// Another creator won the race for the name.
			if mustNotExist {
				return nil, fmt.Errorf("%w: %s", ErrPipeExists, name)
			}
			if conn, derr := net.DialTimeout("unix", path, probeTimeout); derr == nil {
				return newClientEndpoint(name, conn, d.logger), nil
			}
		}
		return nil, fmt.Errorf("pipe %q: listen: %w", name, err)
	}
	return d.serverEndpoint(name, path, ln), nil
}

// tryListen creates the socket with access restricted to the current user
// (0700 directory, 0600 socket).
func (d *unixDriver) tryListen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cannot create socket directory: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		os.Remove(path)
		return nil, fmt.Errorf("cannot set socket permissions: %w", err)
	}
	return ln, nil
}

func (d *unixDriver) serverEndpoint(name, path string, ln net.Listener) Handle {
	wrapped := &socketListener{Listener: ln, path: path, logger: d.logger}
	return newServerEndpoint(name, wrapped, d.verifyPeer, d.logger)
}

// verifyPeer rejects connections from other users.
func (d *unixDriver) verifyPeer(conn net.Conn) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("not a unix connection")
	}
	file, err := uc.File()
	if err != nil {
		return fmt.Errorf("cannot get connection file descriptor: %w", err)
	}
	defer file.Close()

	uid, err := peerUID(int(file.Fd()))
	if err != nil {
		return fmt.Errorf("cannot get peer credentials: %w", err)
	}
	if current := uint32(os.Getuid()); uid != current {
		return fmt.Errorf("connection from different user (uid=%d, expected=%d)", uid, current)
	}
	return nil
}

// socketListener removes the socket file when the listener closes, so the
// name becomes reusable immediately.
type socketListener struct {
	net.Listener
	path   string
	logger *zap.Logger
}

func (l *socketListener) Close() error {
	err := l.Listener.Close()
	if rerr := os.Remove(l.path); rerr != nil && !os.IsNotExist(rerr) {
		l.logger.Warn("failed to remove socket file",
			zap.String("path", l.path), zap.Error(rerr))
	}
	return err
}
