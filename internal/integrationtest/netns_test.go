//go:build integration

package integrationtest_test

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/gob"
	"io"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/dmksnnk/moor/internal/cert"
	"github.com/dmksnnk/moor/internal/integrationtest/echopeer/config"
	"golang.org/x/sync/errgroup"

	gont "cunicu.li/gont/v2/pkg"
	gontops "cunicu.li/gont/v2/pkg/options"
	cmdops "cunicu.li/gont/v2/pkg/options/cmd"
)

// TestEchoSingleSwitch echoes over a single switch.
//
//	client <-> sw1 <-> server
func TestEchoSingleSwitch(t *testing.T) {
	peerPath := buildPeer(t)
	ca, caPrivateKey := newCA(t)

	n, err := gont.NewNetwork(t.Name())
	if err != nil {
		t.Fatalf("create network: %s", err)
	}
	t.Cleanup(func() {
		if err := n.Close(); err != nil {
			t.Errorf("close network: %s", err)
		}
	})

	sw1, err := n.AddSwitch("sw1")
	if err != nil {
		t.Fatalf("create switch sw1: %v", err)
	}

	server, err := n.AddHost("server",
		gontops.DefaultGatewayIP("10.0.1.1"),
		gont.NewInterface("veth0", sw1,
			gontops.AddressIP("10.0.1.2/24")))
	if err != nil {
		t.Fatalf("create server host: %v", err)
	}

	client, err := n.AddHost("client",
		gontops.DefaultGatewayIP("10.0.1.1"),
		gont.NewInterface("veth0", sw1,
			gontops.AddressIP("10.0.1.3/24")))
	if err != nil {
		t.Fatalf("create client host: %v", err)
	}

	_, err = client.Ping(server)
	if err != nil {
		t.Fatalf("Failed to ping client -> server: %v", err)
	}

	serverCfg := config.Config{
		Name:          "server",
		Mode:          "server",
		ListenAddress: netip.MustParseAddrPort("10.0.1.2:7070"),
		Cert:          newCertConfig(t, ca, caPrivateKey, net.ParseIP("10.0.1.2")),
	}
	serverCmd := server.Command(peerPath,
		cmdops.Stdin(stdinConfig(t, serverCfg)),
		cmdops.Stderr(os.Stderr),
		cmdops.Stdout(os.Stdout),
	)

	clientCfg := config.Config{
		Name:          "client",
		Mode:          "client",
		ServerAddress: netip.MustParseAddrPort("10.0.1.2:7070"),
		Messages:      10,
		Cert:          newCertConfig(t, ca, caPrivateKey, net.ParseIP("10.0.1.3")),
	}
	clientCmd := client.Command(peerPath,
		cmdops.Stdin(stdinConfig(t, clientCfg)),
		cmdops.Stderr(os.Stderr),
		cmdops.Stdout(os.Stdout),
	)

	var eg errgroup.Group
	eg.Go(func() error {
		return serverCmd.Run()
	})
	eg.Go(func() error {
		return clientCmd.Run()
	})

	if err := eg.Wait(); err != nil {
		t.Errorf("failed: %v", err)
	}
}

// TestEchoNAT echoes from a client behind a NAT.
//
//	client <-> sw1 <-> nat1 <-> sw2 <-> server
func TestEchoNAT(t *testing.T) {
	peerPath := buildPeer(t)
	ca, caPrivateKey := newCA(t)

	n, err := gont.NewNetwork(t.Name())
	if err != nil {
		t.Fatalf("create network: %s", err)
	}
	t.Cleanup(func() {
		if err := n.Close(); err != nil {
			t.Errorf("close network: %s", err)
		}
	})

	sw1, err := n.AddSwitch("sw1")
	if err != nil {
		t.Fatalf("create switch sw1: %v", err)
	}

	sw2, err := n.AddSwitch("sw2")
	if err != nil {
		t.Fatalf("create switch sw2: %v", err)
	}

	client, err := n.AddHost("client",
		gontops.DefaultGatewayIP("10.0.1.1"),
		gont.NewInterface("veth0", sw1,
			gontops.AddressIP("10.0.1.2/24")))
	if err != nil {
		t.Fatalf("create client host: %v", err)
	}

	server, err := n.AddHost("server",
		gontops.DefaultGatewayIP("10.0.2.1"),
		gont.NewInterface("veth0", sw2,
			gontops.AddressIP("10.0.2.2/24")))
	if err != nil {
		t.Fatalf("create server host: %v", err)
	}

	_, err = n.AddNAT("nat1",
		gont.NewInterface("veth0", sw1, gontops.SouthBound,
			gontops.AddressIP("10.0.1.1/24")),
		gont.NewInterface("veth1", sw2, gontops.NorthBound,
			gontops.AddressIP("10.0.2.1/24")))
	if err != nil {
		t.Fatalf("create NAT: %s", err)
	}

	_, err = client.Ping(server)
	if err != nil {
		t.Fatalf("Failed to ping client -> server: %v", err)
	}

	serverCfg := config.Config{
		Name:          "server",
		Mode:          "server",
		ListenAddress: netip.MustParseAddrPort("10.0.2.2:7070"),
		Cert:          newCertConfig(t, ca, caPrivateKey, net.ParseIP("10.0.2.2")),
	}
	serverCmd := server.Command(peerPath,
		cmdops.Stdin(stdinConfig(t, serverCfg)),
		cmdops.Stderr(os.Stderr),
		cmdops.Stdout(os.Stdout),
	)

	clientCfg := config.Config{
		Name:          "client",
		Mode:          "client",
		ServerAddress: netip.MustParseAddrPort("10.0.2.2:7070"),
		Messages:      10,
		Cert:          newCertConfig(t, ca, caPrivateKey, net.ParseIP("10.0.1.2")),
	}
	clientCmd := client.Command(peerPath,
		cmdops.Stdin(stdinConfig(t, clientCfg)),
		cmdops.Stderr(os.Stderr),
		cmdops.Stdout(os.Stdout),
	)

	var eg errgroup.Group
	eg.Go(func() error {
		return serverCmd.Run()
	})
	eg.Go(func() error {
		return clientCmd.Run()
	})

	if err := eg.Wait(); err != nil {
		t.Errorf("failed: %v", err)
	}
}

const peerPkg = "github.com/dmksnnk/moor/internal/integrationtest/echopeer"

func buildPeer(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "echopeer")

	cmd := exec.Command("go", "build", "-buildvcs=false", "-o", path, peerPkg)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build peer: %s:\n %s", err, out)
	}

	return path
}

func stdinConfig[T any](t *testing.T, cfg T) io.Reader {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&cfg); err != nil {
		t.Fatalf("failed to encode config: %s", err)
	}

	return &buf
}

func newCA(t *testing.T) (*x509.Certificate, crypto.PrivateKey) {
	t.Helper()

	ca, caPrivateKey, err := cert.NewCA()
	if err != nil {
		t.Fatalf("create CA: %s", err)
	}

	return ca, caPrivateKey
}

func newCertConfig(t *testing.T, ca *x509.Certificate, caPrivateKey crypto.PrivateKey, ips ...net.IP) config.Cert {
	t.Helper()

	privkey, err := cert.NewPrivateKey()
	if err != nil {
		t.Fatal("create server private key:", err)
	}
	certBytes, err := cert.NewServerCert(ca, caPrivateKey, privkey.Public(), nil, ips)
	if err != nil {
		t.Fatalf("create server cert: %s", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(privkey)
	if err != nil {
		t.Fatalf("marshal private key: %s", err)
	}

	return config.Cert{
		CACert:     ca.Raw,
		Cert:       certBytes,
		PrivateKey: privBytes,
	}
}
