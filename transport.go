package ws

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/libp2p/go-reuseport"
)

// Transport is the abstract byte-stream collaborator this engine drives: a
// blocking, deadline-aware duplex stream. net.Conn (and *tls.Conn, which
// embeds one) already satisfies this interface; a raw TCP/TLS socket driver
// is explicitly out of this package's scope beyond the listener/dialer glue
// in this file.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// newListener binds addr for the server side. When opts.ReusePort is set it
// uses libp2p/go-reuseport so multiple server processes can share one
// listening port (SO_REUSEPORT/SO_REUSEADDR), which is how this engine
// supports the common "one process per core" deployment shape without
// taking on its own platform-specific socket option code. When opts.TLS is
// non-nil, the listener terminates TLS itself (crypto/tls.NewListener) so
// Server.serve always sees a plaintext byte stream, the same way a plain
// TCP listener does.
func newListener(addr string, opts *Options) (net.Listener, error) {
	var ln net.Listener
	var err error
	if opts.ReusePort {
		ln, err = reuseport.Listen("tcp", addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if opts.TLS != nil {
		ln = tls.NewListener(ln, opts.TLS)
	}
	return ln, nil
}

// configureAcceptedConn applies the per-connection socket options this
// engine always wants on an accepted server connection: keepalives so dead
// peers are eventually noticed, and Nagle disabled so small control frames
// (pings, pongs, close) aren't held back waiting for more data.
func configureAcceptedConn(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(30 * time.Second)
		_ = tc.SetNoDelay(true)
	}
}

// configureDialedConn applies the same socket options on the client side of
// a freshly dialed connection.
func configureDialedConn(conn net.Conn) {
	configureAcceptedConn(conn)
}

func defaultPort(tlsEnabled bool) string {
	if tlsEnabled {
		return "443"
	}
	return "80"
}
