package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/quic"
	"github.com/dmksnnk/moor/tcp"
	"github.com/dmksnnk/moor/udp"
)

func main() {
	ctx, close := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer close()

	var cfg config
	if err := cfg.Parse(os.Args[1:]); err != nil {
		abort(cfg.FS, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	dialer, err := newDialer(cfg)
	if err != nil {
		abort(cfg.FS, err)
	}

	handler := newReplies()
	connector := moor.NewConnector(dialer, moor.Config{
		Handler: handler,
		Logger:  logger,
	})
	defer connector.Dispose()

	sess, err := connector.Connect(ctx, cfg.Addr)
	if err != nil {
		logger.Error("connect", "error", err)
		os.Exit(1)
	}

	if _, err := sess.Write([]byte(cfg.Message)); err != nil {
		logger.Error("send message", "error", err)
		os.Exit(1)
	}

	select {
	case reply := <-handler.messages:
		fmt.Println(string(reply))
	case <-sess.Done():
		logger.Error("session closed before a reply")
		os.Exit(1)
	case <-time.After(cfg.Timeout):
		logger.Error("timed out waiting for the reply")
		os.Exit(1)
	case <-ctx.Done():
	}
}

// replies collects echoed messages.
type replies struct {
	messages chan []byte
}

func newReplies() replies {
	return replies{messages: make(chan []byte, 1)}
}

func (replies) HandleOpen(*moor.Session) error { return nil }

func (r replies) HandleMessage(_ *moor.Session, data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case r.messages <- msg:
	default:
	}

	return nil
}

func (replies) HandleClose(*moor.Session, error) {}

func newDialer(cfg config) (moor.Dialer, error) {
	switch cfg.Transport {
	case "tcp":
		return &tcp.Dialer{}, nil
	case "udp":
		return &udp.Dialer{}, nil
	case "quic":
		tlsConf, err := loadTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("load TLS config: %w", err)
		}

		return &quic.Dialer{TLS: tlsConf}, nil
	default:
		return nil, fmt.Errorf("unknown transport: %s", cfg.Transport)
	}
}

func loadTLSConfig(cfg config) (*tls.Config, error) {
	tlsConf := &tls.Config{
		NextProtos:         []string{quic.NextProto},
		InsecureSkipVerify: cfg.Insecure,
	}

	if cfg.CACert == "" {
		return tlsConf, nil
	}

	caCert, err := loadCACert(cfg.CACert)
	if err != nil {
		return nil, fmt.Errorf("load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	tlsConf.RootCAs = pool

	return tlsConf, nil
}

func loadCACert(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("invalid CA certificate")
	}

	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}

	return caCert, nil
}
