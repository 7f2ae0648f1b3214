package pipe

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// NamedPipe is one endpoint of a named bidirectional byte-stream channel.
//
// The zero-value-like pipe returned by New is closed; CreateNewPipe or
// OpenExisting attach it to a name. All methods are safe for concurrent use:
// a reader-writer lock orders lifecycle operations (create/open/close)
// against each other while Read, Write, IsOpen and Name only take shared
// access, so many goroutines may perform I/O at once and a concurrent Close
// can still interrupt them. Close never waits behind a blocked Read/Write to
// request cancellation; the driver-level CancelIO is what wakes them, after
// which the exclusive teardown proceeds.
type NamedPipe struct {
	driver Driver
	logger *zap.Logger

	mu     sync.RWMutex
	name   string
	handle Handle
}

// Option configures a NamedPipe.
type Option func(*NamedPipe)

// WithLogger attaches a logger for lifecycle and connection diagnostics.
// The default is a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *NamedPipe) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDriver overrides the platform driver. Intended for tests.
func WithDriver(d Driver) Option {
	return func(p *NamedPipe) {
		if d != nil {
			p.driver = d
		}
	}
}

// New returns a closed NamedPipe backed by the platform driver.
func New(opts ...Option) *NamedPipe {
	p := &NamedPipe{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.driver == nil {
		p.driver = newPlatformDriver(p.logger)
	}
	return p
}

// CreateNewPipe makes this endpoint the creating/listening side of the pipe.
// Any previously open handle is closed first, and the configured name is
// updated regardless of the outcome.
//
// With mustNotExist=true the call fails with ErrPipeExists when another
// party already owns an active pipe of that name; at most one exclusive
// creator can succeed for a name at a time. With mustNotExist=false an
// active same-named pipe is joined as a client endpoint instead, and a
// stale leftover endpoint is replaced.
func (p *NamedPipe) CreateNewPipe(name string, mustNotExist bool) error {
	p.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name

	h, err := p.driver.Open(name, true, mustNotExist)
	if err != nil {
		p.logger.Debug("create pipe failed", zap.String("pipe", name), zap.Error(err))
		return err
	}
	p.handle = h
	p.logger.Debug("pipe created", zap.String("pipe", name), zap.Bool("exclusive", mustNotExist))
	return nil
}

// OpenExisting connects to a pipe that another party has already created.
// Any previously open handle is closed first, and the configured name is
// updated regardless of the outcome. It never creates a pipe as a side
// effect; when nothing is being served under the name it fails with
// ErrPipeNotFound and the pipe stays closed.
func (p *NamedPipe) OpenExisting(name string) error {
	p.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name

	h, err := p.driver.Open(name, false, false)
	if err != nil {
		p.logger.Debug("open pipe failed", zap.String("pipe", name), zap.Error(err))
		return err
	}
	p.handle = h
	p.logger.Debug("pipe opened", zap.String("pipe", name))
	return nil
}

// Close releases the endpoint. It first requests driver-level cancellation
// of any in-flight Read/Write while holding only shared access, so it never
// deadlocks behind a blocked I/O call, then takes exclusive access to tear
// the handle down. Closing an already-closed pipe is a no-op.
func (p *NamedPipe) Close() error {
	p.mu.RLock()
	h := p.handle
	p.mu.RUnlock()
	if h != nil {
		h.CancelIO()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return nil
	}
	err := p.handle.Close()
	p.handle = nil
	p.logger.Debug("pipe closed", zap.String("pipe", p.name))
	return err
}

// IsOpen reports whether the pipe currently holds a driver handle.
func (p *NamedPipe) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handle != nil
}

// Name returns the last name passed to CreateNewPipe or OpenExisting,
// whether or not that call succeeded. Empty if the pipe was never opened.
func (p *NamedPipe) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Read fills buf from the pipe, blocking until at least one byte arrived and
// then draining until len(buf) bytes, the timeout, or a concurrent Close —
// whichever comes first. timeout <= 0 means no deadline. Partial data is
// returned with a nil error; a zero-byte outcome carries ErrNotOpen,
// ErrTimeout, ErrClosed, io.EOF (peer gone) or a wrapped driver error.
func (p *NamedPipe) Read(buf []byte, timeout time.Duration) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return 0, ErrNotOpen
	}
	return p.handle.Read(buf, timeout)
}

// Write sends buf to the pipe, blocking until every byte has been accepted,
// the timeout elapses, or a concurrent Close interrupts it. timeout <= 0
// means no deadline. The returned count is the bytes actually accepted; the
// error is non-nil whenever that is fewer than len(buf).
func (p *NamedPipe) Write(buf []byte, timeout time.Duration) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return 0, ErrNotOpen
	}
	return p.handle.Write(buf, timeout)
}
