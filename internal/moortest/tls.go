package moortest

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"testing"

	"github.com/dmksnnk/moor/internal/cert"
)

// ServerTLS returns a self-signed TLS config for a loopback server and
// a client config trusting it.
func ServerTLS(t *testing.T, nextProtos ...string) (server, client *tls.Config) {
	t.Helper()

	ca, caKey, err := cert.NewCA()
	if err != nil {
		t.Fatal("create CA:", err)
	}

	key, err := cert.NewPrivateKey()
	if err != nil {
		t.Fatal("create server private key:", err)
	}

	der, err := cert.NewServerCert(ca, caKey, key.Public(), nil, []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback})
	if err != nil {
		t.Fatal("create server cert:", err)
	}

	serverConf := &tls.Config{
		Certificates: []tls.Certificate{
			{
				Certificate: [][]byte{der},
				PrivateKey:  key,
			},
		},
		NextProtos: nextProtos,
	}

	pool := x509.NewCertPool()
	pool.AddCert(ca)
	clientConf := &tls.Config{
		RootCAs:    pool,
		NextProtos: nextProtos,
	}

	return serverConf, clientConf
}
