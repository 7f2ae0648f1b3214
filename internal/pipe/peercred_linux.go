//go:build linux

package pipe

import "golang.org/x/sys/unix"

// peerUID returns the uid of the peer connected to the socket, via
// SO_PEERCRED.
func peerUID(fd int) (uint32, error) {
	cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, err
	}
	return cred.Uid, nil
}
