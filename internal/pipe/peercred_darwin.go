//go:build darwin

package pipe

import "golang.org/x/sys/unix"

// peerUID returns the uid of the peer connected to the socket, via
// LOCAL_PEERCRED.
func peerUID(fd int) (uint32, error) {
	cred, err := unix.GetsockoptXucred(fd, unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	if err != nil {
		return 0, err
	}
	return cred.Uid, nil
}
