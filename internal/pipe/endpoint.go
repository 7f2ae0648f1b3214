package pipe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// aLongTimeAgo is a non-zero time in the distant past, used to force pending
// deadline-based reads and writes to fail immediately on cancellation.
var aLongTimeAgo = time.Unix(1, 0)

// streamEndpoint adapts a stream transport (unix domain socket, winio named
// pipe) to the Handle contract shared by both platform drivers.
//
// A server endpoint owns a listener and services one connection at a time,
// accepted lazily on the first Read/Write. When the current connection
// reports EOF before delivering any data it is dropped and the endpoint
// waits for the next one within the caller's deadline; this absorbs
// liveness-probe connections and lets a departed client be replaced.
// A client endpoint wraps an already-dialed conn.
//
// Timeouts ride on net.Conn deadlines. CancelIO closes the cancel channel,
// closes the listener to unblock the accept loop, and forces an immediate
// deadline on the live conn; that combination is what wakes a Read or Write
// blocked inside a system call.
type streamEndpoint struct {
	name   string
	logger *zap.Logger

	ln     net.Listener  // nil on client endpoints
	connCh chan net.Conn // fed by acceptLoop

	cancelOnce sync.Once
	cancelled  chan struct{}

	closeOnce sync.Once
	closeErr  error

	mu   sync.Mutex
	conn net.Conn
}

// newServerEndpoint wraps a listener. verify, when non-nil, vets every
// accepted connection (peer credential checks on unix) before it is offered
// to Read/Write.
func newServerEndpoint(name string, ln net.Listener, verify func(net.Conn) error, logger *zap.Logger) *streamEndpoint {
	e := &streamEndpoint{
		name:      name,
		logger:    logger,
		ln:        ln,
		connCh:    make(chan net.Conn, 1),
		cancelled: make(chan struct{}),
	}
	go e.acceptLoop(verify)
	return e
}

// newClientEndpoint wraps an established connection to a pipe server.
func newClientEndpoint(name string, conn net.Conn, logger *zap.Logger) *streamEndpoint {
	return &streamEndpoint{
		name:      name,
		logger:    logger,
		conn:      conn,
		cancelled: make(chan struct{}),
	}
}

func (e *streamEndpoint) acceptLoop(verify func(net.Conn) error) {
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			// Listener closed by CancelIO/Close.
			return
		}
		if verify != nil {
			if verr := verify(conn); verr != nil {
				e.logger.Warn("rejecting pipe connection",
					zap.String("pipe", e.name), zap.Error(verr))
				conn.Close()
				continue
			}
		}
		e.logger.Debug("pipe connection accepted", zap.String("pipe", e.name))
		select {
		case e.connCh <- conn:
		case <-e.cancelled:
			conn.Close()
			return
		}
	}
}

// waitConn returns the live connection, establishing it from the accept loop
// when necessary. A zero deadline waits indefinitely (until cancellation).
func (e *streamEndpoint) waitConn(deadline time.Time) (net.Conn, error) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	if e.ln == nil {
		// A client endpoint whose conn is gone has nothing to wait for.
		return nil, ErrClosed
	}

	var expired <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		expired = t.C
	}

	select {
	case conn = <-e.connCh:
	case <-expired:
		return nil, ErrTimeout
	case <-e.cancelled:
		return nil, ErrClosed
	}

	e.mu.Lock()
	if e.conn == nil {
		e.conn = conn
	} else {
		// A concurrent caller installed a connection first; requeue ours.
		select {
		case e.connCh <- conn:
		default:
			conn.Close()
		}
		conn = e.conn
	}
	e.mu.Unlock()

	// A cancellation that raced the handover must still win.
	select {
	case <-e.cancelled:
		conn.SetDeadline(aLongTimeAgo)
	default:
	}
	return conn, nil
}

// dropConn discards a connection the peer abandoned so the next Read/Write
// can wait for a replacement.
func (e *streamEndpoint) dropConn(conn net.Conn) {
	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
	}
	e.mu.Unlock()
	conn.Close()
	e.logger.Debug("pipe connection dropped", zap.String("pipe", e.name))
}

func (e *streamEndpoint) isCancelled() bool {
	select {
	case <-e.cancelled:
		return true
	default:
		return false
	}
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func (e *streamEndpoint) Read(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	deadline := deadlineFor(timeout)

	for {
		conn, err := e.waitConn(deadline)
		if err != nil {
			return 0, err
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return 0, fmt.Errorf("pipe %q: arm read deadline: %w", e.name, err)
		}
		// Re-check after arming so a concurrent CancelIO cannot be
		// overwritten by the fresh deadline.
		if e.isCancelled() {
			return 0, ErrClosed
		}

		total := 0
		retry := false
		for total < len(p) {
			n, rerr := conn.Read(p[total:])
			total += n
			if rerr == nil {
				continue
			}
			if e.isCancelled() {
				if total > 0 {
					return total, nil
				}
				return 0, ErrClosed
			}
			if errors.Is(rerr, os.ErrDeadlineExceeded) {
				if total > 0 {
					return total, nil
				}
				return 0, ErrTimeout
			}
			if total > 0 {
				// Deliver what arrived; the failure resurfaces next call.
				return total, nil
			}
			if e.ln != nil {
				// Peer vanished before sending anything; wait for the
				// next connection within the same deadline.
				e.dropConn(conn)
				retry = true
				break
			}
			if errors.Is(rerr, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("pipe %q: read: %w", e.name, rerr)
		}
		if retry {
			continue
		}
		return total, nil
	}
}

func (e *streamEndpoint) Write(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	deadline := deadlineFor(timeout)

	for {
		conn, err := e.waitConn(deadline)
		if err != nil {
			return 0, err
		}
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return 0, fmt.Errorf("pipe %q: arm write deadline: %w", e.name, err)
		}
		if e.isCancelled() {
			return 0, ErrClosed
		}

		total := 0
		retry := false
		for total < len(p) {
			n, werr := conn.Write(p[total:])
			total += n
			if werr == nil {
				continue
			}
			if e.isCancelled() {
				return total, ErrClosed
			}
			if errors.Is(werr, os.ErrDeadlineExceeded) {
				return total, ErrTimeout
			}
			if total == 0 && e.ln != nil {
				// Nothing committed yet; a replacement connection may
				// still take the message.
				e.dropConn(conn)
				retry = true
				break
			}
			return total, fmt.Errorf("pipe %q: write: %w", e.name, werr)
		}
		if retry {
			continue
		}
		return total, nil
	}
}

func (e *streamEndpoint) CancelIO() {
	e.cancelOnce.Do(func() {
		close(e.cancelled)
	})
	if e.ln != nil {
		e.ln.Close()
	}
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		conn.SetDeadline(aLongTimeAgo)
	}
}

func (e *streamEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.CancelIO()
		e.mu.Lock()
		conn := e.conn
		e.conn = nil
		e.mu.Unlock()
		if conn != nil {
			e.closeErr = conn.Close()
		}
		// Reap anything the accept loop parked between cancel and now.
		if e.connCh != nil {
			for {
				select {
				case c := <-e.connCh:
					c.Close()
					continue
				default:
				}
				break
			}
		}
	})
	return e.closeErr
}
