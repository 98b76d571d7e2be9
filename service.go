package moor

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmksnnk/moor/internal/platform"
	"github.com/dmksnnk/moor/sockopt"
)

// DefaultMaxCloseWait bounds how long [Service.Dispose] waits for
// sessions to finish closing.
const DefaultMaxCloseWait = 15 * time.Second

// Config configures an [Acceptor] or [Connector].
type Config struct {
	// Group runs session read loops. If nil, the service creates its
	// own group. The group is never shut down by the service, its
	// goroutines end when the sessions do.
	Group *Group
	// Handler receives session events.
	// If nil, all events are dropped.
	Handler Handler
	// Source provides socket option properties for new channels.
	// If nil, only catalog defaults are applied.
	Source sockopt.Source
	// Logger is used for service logging.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
	// MaxCloseWait bounds how long Dispose waits for sessions to close.
	// If zero, [DefaultMaxCloseWait] is used.
	MaxCloseWait time.Duration
}

// Service tracks the open sessions of one acceptor or connector and
// disposes of them as a unit. Services are created by [NewAcceptor] and
// [NewConnector].
type Service struct {
	group        *Group
	handler      Handler
	source       sockopt.Source
	logger       *slog.Logger
	maxCloseWait time.Duration

	lastID   atomic.Uint64
	sessions *platform.Map[uint64, *Session]

	disposing atomic.Bool
	disposed  chan struct{}

	opened atomic.Uint64
	closed atomic.Uint64
}

func newService(cfg Config) *Service {
	group := cfg.Group
	if group == nil {
		group = NewGroup()
	}
	handler := cfg.Handler
	if handler == nil {
		handler = nopHandler{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxCloseWait := cfg.MaxCloseWait
	if maxCloseWait <= 0 {
		maxCloseWait = DefaultMaxCloseWait
	}

	return &Service{
		group:        group,
		handler:      handler,
		source:       cfg.Source,
		logger:       logger,
		maxCloseWait: maxCloseWait,
		sessions:     platform.NewMap[uint64, *Session](),
		disposed:     make(chan struct{}),
	}
}

// open configures the channel, registers a new session for it and
// starts the session's read loop on the group.
// The channel is closed when open fails.
func (s *Service) open(ch Channel) (*Session, error) {
	ch, err := sockopt.Configure(ch, sockopt.Config{
		Source: s.source,
		Logger: s.logger,
	})
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("configure channel: %w", err)
	}

	sess := newSession(s, ch)
	if err := s.register(sess); err != nil {
		sess.discard(err)
		return nil, err
	}

	if !s.group.Go(sess.readLoop) {
		s.sessionClosed(sess)
		sess.discard(ErrGroupClosed)
		return nil, ErrGroupClosed
	}

	return sess, nil
}

// register adds the session to the registry.
// Registration is rejected with [ErrDisposing] once disposal has
// started. The flag is re-checked after the insert so that a session
// racing with Dispose either lands in the dispose snapshot or is
// rejected, never silently kept open.
func (s *Service) register(sess *Session) error {
	if s.disposing.Load() {
		return ErrDisposing
	}

	s.sessions.Put(sess.id, sess)

	if s.disposing.Load() {
		s.sessions.Delete(sess.id)
		return ErrDisposing
	}

	s.opened.Add(1)
	return nil
}

// sessionClosed removes the session from the registry.
// Only the first call for a session removes it, later calls are no-ops.
func (s *Service) sessionClosed(sess *Session) {
	if s.sessions.Delete(sess.id) {
		s.closed.Add(1)
	}
}

// ManagedSessions returns a snapshot of the open sessions by id.
// The returned map is detached from the registry.
func (s *Service) ManagedSessions() map[uint64]*Session {
	return s.sessions.Snapshot()
}

// Dispose closes every open session in parallel and waits for their
// close sequences to finish, bounded by MaxCloseWait. Once disposal has
// started new sessions are rejected with [ErrDisposing].
//
// Dispose may be called multiple times and from multiple goroutines:
// only the first call runs the close, every call waits. On timeout it
// logs a warning and returns; the sessions keep closing in the
// background.
func (s *Service) Dispose() {
	start := time.Now()

	if s.disposing.CompareAndSwap(false, true) {
		sessions := s.sessions.Snapshot()
		s.logger.Debug("disposing service", slog.Int("sessions", len(sessions)))

		var wg sync.WaitGroup
		for _, sess := range sessions {
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := sess.Close(); err != nil {
					s.logger.Debug("close session",
						slog.Uint64("session_id", sess.ID()),
						"error", err,
					)
				}
				<-sess.Done()
			}()
		}

		go func() {
			wg.Wait()
			close(s.disposed)
		}()
	}

	timer := time.NewTimer(s.maxCloseWait)
	defer timer.Stop()

	select {
	case <-s.disposed:
		s.logger.Info("service disposed", slog.Duration("elapsed", time.Since(start)))
	case <-timer.C:
		s.logger.Warn("dispose wait timed out",
			slog.Int("open_sessions", s.sessions.Len()),
			slog.Duration("max_close_wait", s.maxCloseWait),
		)
	}
}

// Stats is a point-in-time view of the service counters.
type Stats struct {
	// Active is the number of currently open sessions.
	Active int
	// Opened is the total number of sessions registered.
	Opened uint64
	// Closed is the total number of sessions fully closed.
	Closed uint64
}

// Stats returns the current service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Active: s.sessions.Len(),
		Opened: s.opened.Load(),
		Closed: s.closed.Load(),
	}
}
