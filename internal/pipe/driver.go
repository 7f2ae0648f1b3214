// Package pipe provides a cross-platform named, bidirectional byte-stream
// IPC channel. A NamedPipe is addressed by an opaque string name: one party
// creates the pipe, another connects to it by name, and both exchange raw
// bytes with per-call timeouts. On Windows the channel is backed by a native
// named pipe (go-winio); on Unix it is backed by a unix domain socket.
package pipe

import (
	"errors"
	"time"
)

// Sentinel errors returned by NamedPipe operations. Use errors.Is to test
// for them; driver-level failures are wrapped and carry these in the chain
// where they correspond to one of these conditions.
var (
	// ErrPipeExists is returned by CreateNewPipe(name, true) when another
	// party already owns an active pipe with that name.
	ErrPipeExists = errors.New("pipe: name already in use")

	// ErrPipeNotFound is returned by OpenExisting when no pipe with the
	// given name is being served.
	ErrPipeNotFound = errors.New("pipe: no such pipe")

	// ErrNotOpen is returned by Read/Write when the pipe has no handle.
	ErrNotOpen = errors.New("pipe: not open")

	// ErrTimeout is returned by Read/Write when the timeout elapsed before
	// any byte could be transferred.
	ErrTimeout = errors.New("pipe: i/o timeout")

	// ErrClosed is returned by a Read/Write that was unblocked by a
	// concurrent Close on the same NamedPipe.
	ErrClosed = errors.New("pipe: closed")
)

// Driver creates platform pipe endpoints. Exactly one implementation exists
// per platform, chosen at build time (driver_unix.go / driver_windows.go).
type Driver interface {
	// Open creates or connects an endpoint for the named pipe.
	//
	// asServer=true creates/listens; mustNotExist=true additionally demands
	// that no other party currently owns the name (ErrPipeExists otherwise).
	// With mustNotExist=false an active same-named pipe is joined as a
	// client endpoint instead. asServer=false connects to an existing pipe
	// and fails with ErrPipeNotFound when none is being served.
	Open(name string, asServer, mustNotExist bool) (Handle, error)
}

// Handle is one endpoint's connection to a named pipe. Read, Write and
// CancelIO may be called concurrently from multiple goroutines; CancelIO
// forces any blocked Read or Write on this handle to return promptly and is
// how a concurrent Close interrupts in-flight I/O.
type Handle interface {
	// Read blocks until at least one byte arrived, then keeps draining
	// until len(p) bytes, the timeout, or cancellation. timeout <= 0 means
	// no deadline. It returns the bytes read; the error is non-nil only
	// when nothing was read.
	Read(p []byte, timeout time.Duration) (int, error)

	// Write blocks until all of p has been accepted, the timeout elapses,
	// or the handle is cancelled. It returns the bytes written so far; the
	// error is non-nil whenever fewer than len(p) bytes went out.
	Write(p []byte, timeout time.Duration) (int, error)

	// CancelIO unblocks pending Read/Write/connection waits. The handle is
	// unusable for further I/O afterwards and should be closed.
	CancelIO()

	// Close releases the OS resources behind the endpoint. Idempotent.
	Close() error
}
