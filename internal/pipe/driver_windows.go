//go:build windows

package pipe

import (
	"errors"
	"fmt"
	"time"

	winio "github.com/Microsoft/go-winio"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"pipelink-go/internal/pipename"
)

const (
	pipeBufferSize = 65536
	dialTimeout    = 5 * time.Second
)

// windowsDriver backs named pipes with native Windows named pipes via
// go-winio. The creating side listens with the first-instance flag, so the
// OS itself enforces single ownership of a name; the opening side dials.
type windowsDriver struct {
	logger *zap.Logger
}

func newPlatformDriver(logger *zap.Logger) Driver {
	return &windowsDriver{logger: logger}
}

func (d *windowsDriver) Open(name string, asServer, mustNotExist bool) (Handle, error) {
	path := pipename.PipePath(name)
	if !asServer {
		return d.dial(name, path)
	}

	cfg := &winio.PipeConfig{
		// Empty descriptor restricts the pipe to the current user.
		SecurityDescriptor: "",
		MessageMode:        false,
		InputBufferSize:    pipeBufferSize,
		OutputBufferSize:   pipeBufferSize,
	}
	ln, err := winio.ListenPipe(path, cfg)
	if err == nil {
		return newServerEndpoint(name, ln, nil, d.logger), nil
	}

	// CreateNamedPipe reports an already-owned name as access denied
	// because of the first-instance flag.
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) || errors.Is(err, windows.ERROR_PIPE_BUSY) {
		if mustNotExist {
			return nil, fmt.Errorf("%w: %s", ErrPipeExists, name)
		}
		d.logger.Debug("joining active pipe as client",
			zap.String("pipe", name), zap.String("path", path))
		return d.dial(name, path)
	}
	return nil, fmt.Errorf("pipe %q: listen: %w", name, err)
}

func (d *windowsDriver) dial(name, path string) (Handle, error) {
	timeout := dialTimeout
	conn, err := winio.DialPipe(path, &timeout)
	if err != nil {
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
			return nil, fmt.Errorf("%w: %s", ErrPipeNotFound, name)
		}
		return nil, fmt.Errorf("pipe %q: dial: %w", name, err)
	}
	return newClientEndpoint(name, conn, d.logger), nil
}
