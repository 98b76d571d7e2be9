//go:build windows

package tcp

import "golang.org/x/sys/windows"

func setReuseAddr(fd uintptr, on bool) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, boolInt(on))
}

func setRecvBuffer(fd uintptr, size int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_RCVBUF, size)
}
