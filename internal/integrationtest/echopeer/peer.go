package main

import (
	"context"
	"crypto/tls"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/internal/integrationtest"
	"github.com/dmksnnk/moor/internal/integrationtest/echopeer/config"
	"github.com/dmksnnk/moor/quic"
)

func main() {
	var cfg config.Config
	if err := gob.NewDecoder(os.Stdin).Decode(&cfg); err != nil {
		abort("decode config", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger = logger.With("peer", cfg.Name)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tlsConf, err := cfg.Cert.TLSConfig()
	if err != nil {
		abort("create TLS config", err)
	}
	tlsConf.NextProtos = []string{quic.NextProto}

	group := moor.NewGroup()

	if cfg.Mode == "client" {
		err = runClient(ctx, cfg, tlsConf, group, logger)
	} else {
		err = runServer(ctx, cfg, tlsConf, group, logger)
	}
	if err != nil {
		abort("run "+cfg.Mode, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := group.Shutdown(shutdownCtx); err != nil {
		abort("shutdown group", err)
	}

	slog.Info("peer done")
}

// runServer echoes messages back until its client disconnects.
func runServer(ctx context.Context, cfg config.Config, tlsConf *tls.Config, group *moor.Group, logger *slog.Logger) error {
	ln, err := quic.Listen(cfg.ListenAddress.String(), quic.ListenConfig{TLS: tlsConf, Logger: logger})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	handler := newEchoHandler()
	acc := moor.NewAcceptor(ln, moor.Config{
		Group:   group,
		Handler: handler,
		Logger:  logger,
	})

	logger.Info("listening", slog.String("addr", acc.Addr()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- acc.Serve(ctx)
	}()

	select {
	case <-handler.closed: // the client is done and has disconnected
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}

	acc.Dispose()
	if err := <-serveErr; !errors.Is(err, moor.ErrClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

func runClient(ctx context.Context, cfg config.Config, tlsConf *tls.Config, group *moor.Group, logger *slog.Logger) error {
	replies := integrationtest.NewReplies()
	connector := moor.NewConnector(&quic.Dialer{TLS: tlsConf}, moor.Config{
		Group:   group,
		Handler: replies,
		Logger:  logger,
	})
	defer connector.Dispose()

	sess, err := connect(ctx, connector, cfg.ServerAddress.String())
	if err != nil {
		return err
	}
	slog.Info("connected", slog.String("remote", sess.RemoteAddr().String()))

	for i := range cfg.Messages {
		msg := fmt.Sprintf("hello %d", i)
		got, err := replies.Call(sess, msg)
		if err != nil {
			return fmt.Errorf("call %d: %w", i, err)
		}
		if want := msg; want != got {
			return fmt.Errorf("unexpected reply, want: %q, got: %q", want, got)
		}
	}

	slog.Info("echoed messages", slog.Int("count", cfg.Messages))

	return nil
}

// connect dials the server, retrying while it may still be starting up.
func connect(ctx context.Context, connector *moor.Connector, addr string) (*moor.Session, error) {
	for {
		sess, err := connector.Connect(ctx, addr)
		if err == nil {
			return sess, nil
		}

		slog.Debug("connect failed, retrying", "err", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect %s: %w", addr, err)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// echoHandler echoes messages back and reports when its first session closes.
type echoHandler struct {
	once   sync.Once
	closed chan struct{}
}

func newEchoHandler() *echoHandler {
	return &echoHandler{closed: make(chan struct{})}
}

func (e *echoHandler) HandleOpen(*moor.Session) error { return nil }

func (e *echoHandler) HandleMessage(sess *moor.Session, data []byte) error {
	if _, err := sess.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func (e *echoHandler) HandleClose(*moor.Session, error) {
	e.once.Do(func() { close(e.closed) })
}

func abort(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
