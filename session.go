package moor

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dmksnnk/moor/internal/platform"
)

const readBufferSize = 32 * 1024

var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, readBufferSize)
		return &buf
	},
}

// Session is a single transport connection managed by a [Service].
type Session struct {
	id  uint64
	svc *Service
	ch  Channel

	attrs *platform.Map[string, any]

	writeMutex sync.Mutex

	mutex  sync.Mutex
	closed bool
	cause  error

	done chan struct{}
}

func newSession(svc *Service, ch Channel) *Session {
	return &Session{
		id:    svc.lastID.Add(1),
		svc:   svc,
		ch:    ch,
		attrs: platform.NewMap[string, any](),
		done:  make(chan struct{}),
	}
}

// ID returns the session id, unique within the service.
func (s *Session) ID() uint64 {
	return s.id
}

// LocalAddr returns the local address of the session's channel.
func (s *Session) LocalAddr() net.Addr {
	return s.ch.LocalAddr()
}

// RemoteAddr returns the remote address of the session's channel.
func (s *Session) RemoteAddr() net.Addr {
	return s.ch.RemoteAddr()
}

// Write writes data to the session's channel.
// It is safe for concurrent use.
func (s *Session) Write(p []byte) (int, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	return s.ch.Write(p)
}

// SetValue stores a session attribute.
func (s *Session) SetValue(key string, value any) {
	s.attrs.Put(key, value)
}

// Value returns a session attribute.
func (s *Session) Value(key string) (any, bool) {
	return s.attrs.Get(key)
}

// Done is closed when the session's close sequence has finished and the
// session is removed from its service.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close closes the session's channel, which ends the session: the read
// loop deregisters the session and notifies the handler. Wait on
// [Session.Done] for the close sequence to finish. Close is idempotent.
func (s *Session) Close() error {
	return s.close(nil)
}

// close records the close cause and closes the channel.
// Only the first call records and closes, later calls are no-ops.
func (s *Session) close(cause error) error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.cause = cause
	s.mutex.Unlock()

	err := s.ch.Close()
	if err != nil && errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *Session) closeCause() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.cause
}

// readLoop drives the session: the open event, reads with message
// events, and finally the close sequence. It runs on the service group,
// so all handler calls for the session happen on this goroutine.
func (s *Session) readLoop() {
	defer s.finalize()

	if err := s.svc.handler.HandleOpen(s); err != nil {
		s.close(fmt.Errorf("handle open: %w", err))
		return
	}

	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	for {
		n, err := s.ch.Read(*bufp)
		if n > 0 {
			if herr := s.svc.handler.HandleMessage(s, (*bufp)[:n]); herr != nil {
				s.close(fmt.Errorf("handle message: %w", herr))
				return
			}
		}
		if err != nil {
			s.close(readCause(err))
			return
		}
	}
}

// finalize runs the tail of the close sequence: deregistration, the
// handler close event and the done signal.
func (s *Session) finalize() {
	s.close(nil)
	s.svc.sessionClosed(s)
	s.svc.handler.HandleClose(s, s.closeCause())
	close(s.done)
}

// discard abandons a session whose read loop never started.
// The handler never learns about such a session.
func (s *Session) discard(cause error) {
	s.close(cause)
	close(s.done)
}

// readCause maps expected end-of-stream read errors to a clean close.
func readCause(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return fmt.Errorf("read: %w", err)
}
