package platform

// ChanLog is an io.Writer exposing everything written to it on a
// channel, one write per message. Useful for asserting on log output.
type ChanLog struct {
	logs chan []byte
}

// NewChanLog creates a ChanLog holding at most one pending message.
func NewChanLog() *ChanLog {
	return &ChanLog{
		logs: make(chan []byte, 1),
	}
}

// Logs returns the channel of written messages.
func (cl *ChanLog) Logs() <-chan []byte {
	return cl.logs
}

// Write sends a copy of p to the channel. The caller may reuse p, so
// it is copied. When the channel is full the message is dropped.
func (cl *ChanLog) Write(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		return
	}

	msg := make([]byte, n)
	copy(msg, p)

	select {
	case cl.logs <- msg:
	default:
	}
	return
}
