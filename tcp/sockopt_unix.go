//go:build unix

package tcp

import "golang.org/x/sys/unix"

func setReuseAddr(fd uintptr, on bool) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(on))
}

func setRecvBuffer(fd uintptr, size int) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
}
