// Package transport owns the duplex byte stream a Session drives: dialing
// the socket (TCP or PostgreSQL's domain-socket convention), performing
// the optional SSL pre-handshake, and exposing plain read/write/end/destroy
// operations. It knows nothing about the wire protocol above the SSL
// pre-handshake bytes themselves.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/outpostdb/pgwire/pkg/wire"
)

// Config describes how to establish the transport, before any wire
// protocol has been spoken.
type Config struct {
	// Host is either a hostname/IP for a TCP connection, or a directory
	// path beginning with "/" for PostgreSQL's domain-socket convention
	// ({host}/.s.PGSQL.{port}).
	Host string
	Port int

	ConnectTimeout time.Duration

	TLSConfig *tls.Config // nil disables TLS entirely

	Keepalive       bool
	KeepaliveIdle   time.Duration
}

// Transport is a connected duplex byte stream, optionally TLS-upgraded.
type Transport struct {
	conn net.Conn

	// ending is set once End or Destroy has been called, so Read/Write can
	// apply the teacher-derived error-suppression policy.
	ending bool
}

// Connect dials the configured address, performs the SSL pre-handshake
// if cfg.TLSConfig is set, and returns a ready-to-use Transport. The
// caller is responsible for sending the StartupMessage next.
func Connect(ctx context.Context, cfg Config) (*Transport, error) {
	network, address := dialTarget(cfg.Host, cfg.Port)

	dialer := &net.Dialer{}
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &wire.TransportError{Cause: ctx.Err()}
		}
		return nil, &wire.TransportError{Cause: err}
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		if cfg.Keepalive {
			_ = tcpConn.SetKeepAlive(true)
			if cfg.KeepaliveIdle > 0 {
				_ = tcpConn.SetKeepAlivePeriod(cfg.KeepaliveIdle)
			}
		}
	}

	t := &Transport{conn: conn}

	if cfg.TLSConfig != nil {
		if err := t.negotiateTLS(cfg.TLSConfig); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return t, nil
}

// dialTarget maps (host, port) to a network/address pair, applying
// PostgreSQL's domain-socket convention when host begins with "/".
func dialTarget(host string, port int) (network, address string) {
	if strings.HasPrefix(host, "/") {
		return "unix", path.Join(host, fmt.Sprintf(".s.PGSQL.%d", port))
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(port))
}

// negotiateTLS performs the SSL pre-handshake: send the 8-byte SSLRequest,
// read the single-byte response, and upgrade the connection on 'S'.
func (t *Transport) negotiateTLS(tlsConfig *tls.Config) error {
	if _, err := t.conn.Write(wire.SSLRequest); err != nil {
		return &wire.TransportError{Cause: err}
	}

	var resp [1]byte
	if _, err := io.ReadFull(t.conn, resp[:]); err != nil {
		return &wire.TransportError{Cause: err}
	}

	switch resp[0] {
	case 'S':
		t.conn = tls.Client(t.conn, tlsConfig)
		return nil
	case 'N':
		return &wire.SSLError{Kind: wire.SSLUnsupported}
	default:
		return &wire.SSLError{Kind: wire.SSLNegotiationFailed, Cause: fmt.Errorf("unexpected pre-handshake byte 0x%02x", resp[0])}
	}
}

// Read implements io.Reader so a *wire.Reader can be built directly on top
// of a Transport.
func (t *Transport) Read(p []byte) (int, error) {
	n, err := t.conn.Read(p)
	if err != nil {
		return n, t.classify(err)
	}
	return n, nil
}

// Write sends raw bytes, typically the output of a pgproto3 message's
// Encode.
func (t *Transport) Write(p []byte) (int, error) {
	n, err := t.conn.Write(p)
	if err != nil {
		return n, t.classify(err)
	}
	return n, nil
}

// classify applies the error-suppression policy from spec §4.2: socket
// errors observed while tearing down that look like the peer closing
// first (ECONNRESET/EPIPE) are expected, not failures.
func (t *Transport) classify(err error) error {
	if t.ending && isExpectedTeardownError(err) {
		return io.EOF
	}
	return &wire.TransportError{Cause: err}
}

func isExpectedTeardownError(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, io.EOF)
}

// End writes a Terminate message and half-closes the write side, the
// orderly shutdown path used when the session is idle.
func (t *Transport) End() error {
	t.ending = true
	if _, err := t.conn.Write(wire.TerminateMessage); err != nil && !isExpectedTeardownError(err) {
		return &wire.TransportError{Cause: err}
	}
	if cw, ok := t.conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return nil
	}
	return t.conn.Close()
}

// Destroy hard-closes the socket immediately, used when the session is
// busy and teardown can't wait for an orderly exchange.
func (t *Transport) Destroy() error {
	t.ending = true
	return t.conn.Close()
}

// LocalAddr and RemoteAddr expose the underlying connection's addresses,
// useful for logging.
func (t *Transport) LocalAddr() net.Addr  { return t.conn.LocalAddr() }
func (t *Transport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }
