package pipe

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Endpoint-level tests run against net.Pipe so they exercise the deadline
// and cancellation machinery without touching the OS pipe namespace.

func TestStreamEndpoint_ReadWrite(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	e := newClientEndpoint("test", local, zap.NewNop())
	defer e.Close()

	go func() {
		remote.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	n, err := e.Read(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf[:n])

	go func() {
		b := make([]byte, 5)
		io.ReadFull(remote, b)
	}()

	n, err = e.Write([]byte("world"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestStreamEndpoint_ZeroLength(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	e := newClientEndpoint("test", local, zap.NewNop())
	defer e.Close()

	n, err := e.Read(nil, time.Second)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.Write(nil, time.Second)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStreamEndpoint_WriteTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	e := newClientEndpoint("test", local, zap.NewNop())
	defer e.Close()

	// Nobody reads the remote side; the write must give up at the deadline.
	n, err := e.Write([]byte("stuck"), 200*time.Millisecond)
	assert.Zero(t, n)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestStreamEndpoint_CancelUnblocksRead(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	e := newClientEndpoint("test", local, zap.NewNop())
	defer e.Close()

	result := make(chan error, 1)
	go func() {
		_, err := e.Read(make([]byte, 4), time.Minute)
		result <- err
	}()

	time.Sleep(50 * time.Millisecond)
	e.CancelIO()

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not unblock after CancelIO")
	}
}

func TestStreamEndpoint_PeerCloseDeliversEOF(t *testing.T) {
	local, remote := net.Pipe()

	e := newClientEndpoint("test", local, zap.NewNop())
	defer e.Close()

	remote.Close()

	n, err := e.Read(make([]byte, 4), time.Second)
	assert.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}
