package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/internal/admin"
	"github.com/dmksnnk/moor/internal/cert"
	"github.com/dmksnnk/moor/quic"
	"github.com/dmksnnk/moor/sockopt"
	"github.com/dmksnnk/moor/tcp"
	"github.com/dmksnnk/moor/udp"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type config struct {
	LogLevel      slog.Level        `env:"LOG_LEVEL" envDefault:"INFO"`
	MaxCloseWait  time.Duration     `env:"MAX_CLOSE_WAIT" envDefault:"15s"`
	StatsInterval time.Duration     `env:"STATS_INTERVAL" envDefault:"1m"`
	Socket        map[string]string `env:"SOCKET_OPTIONS"` // socket properties, like "no-delay:true,receive-buffer:65536"
	TCP           tcpConfig
	QUIC          quicConfig
	UDP           udpConfig
	Admin         adminConfig
	HTTP          httpConfig
	Cert          certConfig
}

type tcpConfig struct {
	// Listen is the listen address for TCP sessions. Empty disables TCP.
	Listen string `env:"TCP_LISTEN" envDefault:":7070"`
}

type quicConfig struct {
	// Listen is the listen address for QUIC sessions. Empty disables QUIC.
	Listen string `env:"QUIC_LISTEN" envDefault:":7071"`
}

type udpConfig struct {
	// Listen is the listen address for plain UDP sessions. Empty disables UDP.
	Listen string `env:"UDP_LISTEN" envDefault:":7072"`
}

type adminConfig struct {
	// Listen is the listen address for the admin HTTP endpoint.
	Listen string `env:"ADMIN_LISTEN" envDefault:"localhost:7079"`
}

type httpConfig struct {
	// Listen is the listen address for ACME HTTP-01 challenges.
	// Only used when autocert is enabled.
	Listen string `env:"HTTP_LISTEN" envDefault:":80"`
}

type certConfig struct {
	// SelfSigned indicates whether to use a self-signed certificate.
	SelfSigned bool `env:"CERT_SELF_SIGNED" envDefault:"true"`
	// Dir to store certificates.
	Dir string `env:"CERT_DIR" envDefault:"certs"`
	// Domains to request or generate certificates for.
	Domains []string `env:"CERT_DOMAINS" envDefault:"localhost"`
}

func main() {
	ctx, close := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer close()

	cfg := parseConfig()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	logger.DebugContext(ctx, "load config", slog.Any("config", cfg))

	eg, ctx := errgroup.WithContext(ctx)

	group := moor.NewGroup()
	source := sockopt.Properties(cfg.Socket)
	serviceConfig := func(component string) moor.Config {
		return moor.Config{
			Group:        group,
			Handler:      echo{},
			Source:       source,
			Logger:       logger.With(slog.String("component", component)),
			MaxCloseWait: cfg.MaxCloseWait,
		}
	}

	serve := func(name string, acc *moor.Acceptor) func() error {
		return func() error {
			if err := acc.Serve(ctx); err != nil {
				if errors.Is(err, moor.ErrClosed) || errors.Is(err, context.Canceled) {
					return nil
				}

				return fmt.Errorf("serve %s: %w", name, err)
			}

			return nil
		}
	}

	services := make(map[string]admin.Service)
	acceptors := make(map[string]*moor.Acceptor)

	var challengeSrv *http.Server

	if cfg.TCP.Listen != "" {
		ln, err := tcp.Listen(ctx, cfg.TCP.Listen, tcp.ListenConfig{
			Source: source,
			Logger: logger.With(slog.String("component", "tcp")),
		})
		if err != nil {
			abort("listen tcp", err)
		}

		acc := moor.NewAcceptor(ln, serviceConfig("tcp"))
		services["tcp"] = acc
		acceptors["tcp"] = acc
		eg.Go(serve("tcp", acc))
	}

	if cfg.QUIC.Listen != "" {
		tlsConf, acmeMgr := newTLSConfig(cfg.Cert)
		tlsConf = tlsConf.Clone()
		tlsConf.NextProtos = []string{quic.NextProto}

		ln, err := quic.Listen(cfg.QUIC.Listen, quic.ListenConfig{
			TLS:    tlsConf,
			Source: source,
			Logger: logger.With(slog.String("component", "quic")),
		})
		if err != nil {
			abort("listen quic", err)
		}

		acc := moor.NewAcceptor(ln, serviceConfig("quic"))
		services["quic"] = acc
		acceptors["quic"] = acc
		eg.Go(serve("quic", acc))

		if acmeMgr != nil {
			challengeSrv = &http.Server{
				Addr:    cfg.HTTP.Listen,
				Handler: acmeMgr.HTTPHandler(nil),
			}
			eg.Go(func() error {
				if err := challengeSrv.ListenAndServe(); err != nil {
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}

					return fmt.Errorf("listen and serve ACME challenges: %w", err)
				}

				return nil
			})
		}
	}

	if cfg.UDP.Listen != "" {
		ln, err := udp.Listen(cfg.UDP.Listen, udp.ListenConfig{
			Source: source,
			Logger: logger.With(slog.String("component", "udp")),
		})
		if err != nil {
			abort("listen udp", err)
		}

		acc := moor.NewAcceptor(ln, serviceConfig("udp"))
		services["udp"] = acc
		acceptors["udp"] = acc
		eg.Go(serve("udp", acc))
	}

	api := admin.NewAPI(services)
	adminSrv := &http.Server{
		Addr: cfg.Admin.Listen,
		Handler: admin.Wrap(
			admin.NewRouter(api),
			admin.LogRequests(logger.With(slog.String("component", "admin"))),
		),
	}
	eg.Go(func() error {
		if err := adminSrv.ListenAndServe(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}

			return fmt.Errorf("listen and serve admin: %w", err)
		}

		return nil
	})

	eg.Go(func() error {
		ticker := time.NewTicker(cfg.StatsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				logStats(logger, services)
			}
		}
	})

	for name, acc := range acceptors {
		logger.Info("listening",
			slog.String("transport", name),
			slog.String("addr", acc.Addr()),
		)
	}
	logger.Info("admin endpoint", slog.String("addr", cfg.Admin.Listen))

	<-ctx.Done()

	logger.Info("shutting down")

	for _, acc := range acceptors {
		acc.Dispose()
	}

	shutdown(adminSrv, logger, "admin server")
	if challengeSrv != nil {
		shutdown(challengeSrv, logger, "ACME challenge server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := group.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown session group", "error", err)
	}

	if err := eg.Wait(); err != nil {
		logger.Error("shutdown", "error", err)
		os.Exit(1)
	}
}

// echo writes every received message back to its session.
type echo struct{}

func (echo) HandleOpen(*moor.Session) error { return nil }

func (echo) HandleMessage(s *moor.Session, data []byte) error {
	if _, err := s.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func (echo) HandleClose(*moor.Session, error) {}

func parseConfig() config {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		abort("parse config", err)
	}

	return cfg
}

func newTLSConfig(cfg certConfig) (*tls.Config, *autocert.Manager) {
	if cfg.SelfSigned {
		tlsConf, err := selfSigned(cfg)
		if err != nil {
			abort("create self signed cert", err)
		}

		return tlsConf, nil
	}

	mgr := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(cfg.Dir),
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
	}
	return mgr.TLSConfig(), mgr
}

func selfSigned(cfg certConfig) (*tls.Config, error) {
	ca, caPrivateKey, err := cert.NewCA()
	if err != nil {
		return nil, fmt.Errorf("create CA: %w", err)
	}

	if err := writeCACert(cfg.Dir, ca); err != nil {
		return nil, fmt.Errorf("write CA certificate: %w", err)
	}

	srvPrivKey, err := cert.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("create server private key: %w", err)
	}

	dnsNames, ips := splitDomains(cfg.Domains)
	srvCert, err := cert.NewServerCert(ca, caPrivateKey, srvPrivKey.Public(), dnsNames, ips)
	if err != nil {
		return nil, fmt.Errorf("create server cert: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{
			{
				Certificate: [][]byte{srvCert},
				PrivateKey:  srvPrivKey,
			},
		},
	}, nil
}

// splitDomains splits configured domains into DNS names and IP addresses
// for certificate SANs.
func splitDomains(domains []string) (dnsNames []string, ips []net.IP) {
	for _, domain := range domains {
		if ip := net.ParseIP(domain); ip != nil {
			ips = append(ips, ip)
			continue
		}

		dnsNames = append(dnsNames, domain)
	}

	return dnsNames, ips
}

func writeCACert(dir string, cert *x509.Certificate) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "ca.crt"))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if err := pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}); err != nil {
		return fmt.Errorf("encode certificate: %w", err)
	}

	return nil
}

func logStats(logger *slog.Logger, services map[string]admin.Service) {
	for name, svc := range services {
		stats := svc.Stats()
		logger.Info("stats",
			slog.String("service", name),
			slog.Group("sessions",
				slog.Int("active", stats.Active),
				slog.Uint64("opened", stats.Opened),
				slog.Uint64("closed", stats.Closed),
			),
		)
	}
}

func shutdown(srv *http.Server, logger *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown "+name, "error", err)
	}
}

func abort(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
