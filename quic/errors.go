package quic

import (
	"errors"

	quicgo "github.com/quic-go/quic-go"
)

// Application error codes sent on connection close.
const (
	codeClosed quicgo.ApplicationErrorCode = iota
	codeNoStream
)

// isLocalClosed reports an orderly close initiated on this side.
func isLocalClosed(err error) bool {
	var appErr *quicgo.ApplicationError
	if errors.As(err, &appErr) {
		return !appErr.Remote && appErr.ErrorCode == codeClosed
	}
	return false
}

// isRemoteClosed reports an orderly close initiated by the peer.
func isRemoteClosed(err error) bool {
	var appErr *quicgo.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Remote && appErr.ErrorCode == codeClosed
	}
	return false
}
