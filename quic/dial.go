package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
	quicgo "github.com/quic-go/quic-go"
)

// Dialer dials QUIC channels. Every dial opens its own UDP socket,
// closed together with the channel.
type Dialer struct {
	// TLS is the client TLS configuration.
	TLS *tls.Config
	// QUIC configures the QUIC layer. Optional.
	QUIC *quicgo.Config
	// Source provides socket option properties for the UDP socket.
	Source sockopt.Source
	// Logger is used for option logging.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
}

var _ moor.Dialer = (*Dialer)(nil)

// Dial connects to addr and opens the channel's stream.
func (d *Dialer) Dial(ctx context.Context, addr string) (moor.Channel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}

	socket, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	if _, err := sockopt.Configure(&packetChannel{conn: socket}, sockopt.Config{
		Source: d.Source,
		Logger: d.Logger,
	}); err != nil {
		socket.Close()
		return nil, fmt.Errorf("configure socket: %w", err)
	}

	conn, err := quicgo.Dial(ctx, socket, udpAddr, d.TLS, d.QUIC)
	if err != nil {
		socket.Close()
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(codeNoStream, "no stream")
		socket.Close()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	return &Conn{Stream: stream, conn: conn, release: socket.Close}, nil
}
