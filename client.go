package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Client is one outbound WebSocket connection. Register OnOpen/OnMessage/
// OnClose/OnError before calling Dial so there is no window during which an
// event could fire with no handler attached.
type Client struct {
	opts    *Options
	logger  zerolog.Logger
	headers map[string][]string

	conn *Connection

	onOpen    func()
	onMessage func(Message)
	onClose   func(error)
	onError   func(error)
}

// NewClient builds a Client that has not yet connected. A nil opts uses
// DefaultOptions().
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Client{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "ws.Client").Logger(),
	}
}

func (cl *Client) OnOpen(fn func())           { cl.onOpen = fn }
func (cl *Client) OnMessage(fn func(Message)) { cl.onMessage = fn }
func (cl *Client) OnClose(fn func(error))     { cl.onClose = fn }
func (cl *Client) OnError(fn func(error))     { cl.onError = fn }

// SetHeader adds an extra header to send with the opening handshake
// request (e.g. Authorization, or a cookie). Must be called before Dial.
func (cl *Client) SetHeader(name, value string) {
	if cl.headers == nil {
		cl.headers = map[string][]string{}
	}
	cl.headers[name] = append(cl.headers[name], value)
}

// Dial connects to rawURL (scheme ws or wss), performs the opening
// handshake, fires on_open on success, and starts the background read/write
// goroutines. ctx bounds both the TCP connect and, combined with
// opts.HandshakeTimeout, the handshake itself.
func (cl *Client) Dial(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return cl.fail(configError(fmt.Errorf("parsing url: %w", err)))
	}

	var tlsEnabled bool
	switch u.Scheme {
	case "ws":
		tlsEnabled = false
	case "wss":
		tlsEnabled = true
	default:
		return cl.fail(configError(fmt.Errorf("unsupported scheme %q (want ws or wss)", u.Scheme)))
	}

	host := u.Hostname()
	if host == "" {
		return cl.fail(configError(fmt.Errorf("url %q has no host", rawURL)))
	}
	port := u.Port()
	if port == "" {
		port = defaultPort(tlsEnabled)
	}
	addr := net.JoinHostPort(host, port)

	dialCtx := ctx
	var cancel context.CancelFunc
	if cl.opts.HandshakeTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, cl.opts.HandshakeTimeout)
		defer cancel()
	}

	var d net.Dialer
	rawConn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return cl.fail(transportError(err))
	}
	configureDialedConn(rawConn)

	var transport Transport = rawConn
	if tlsEnabled {
		tlsConf := cl.opts.TLS
		if tlsConf == nil {
			tlsConf = &tls.Config{ServerName: host}
		} else if tlsConf.ServerName == "" {
			clone := tlsConf.Clone()
			clone.ServerName = host
			tlsConf = clone
		}
		tlsConn := tls.Client(rawConn, tlsConf)
		if err := tlsConn.HandshakeContext(dialCtx); err != nil {
			_ = rawConn.Close()
			return cl.fail(transportError(err))
		}
		transport = tlsConn
	}

	if deadline, ok := dialCtx.Deadline(); ok {
		_ = transport.SetReadDeadline(deadline)
		_ = transport.SetWriteDeadline(deadline)
	}
	leftover, deflateNegotiated, protocol, err := clientHandshake(transport, cl.opts, host, u.EscapedPath(), u.RawQuery, cl.headers)
	if err != nil {
		_ = transport.Close()
		return cl.fail(err)
	}
	_ = transport.SetReadDeadline(time.Time{})
	_ = transport.SetWriteDeadline(time.Time{})

	c := newConnection(0, RoleClient, transport, cl.opts, cl.logger)
	c.request = &Request{Protocol: protocol}
	c.completeHandshake(deflateNegotiated)
	c.onMessage = func(_ *Connection, m Message) {
		if cl.onMessage != nil {
			c.safeCallVoid(func() { cl.onMessage(m) })
		}
	}
	c.onClose = func(_ *Connection, cause error) {
		if cl.onClose != nil {
			c.safeCallVoid(func() { cl.onClose(cause) })
		}
	}
	cl.conn = c

	if cl.onOpen != nil {
		c.safeCallVoid(cl.onOpen)
	}

	go c.writeLoop()
	go c.run(leftover)
	return nil
}

func (cl *Client) fail(err error) error {
	if cl.onError != nil {
		cl.onError(err)
	}
	if cl.onClose != nil {
		cl.onClose(err)
	}
	return err
}

// Send enqueues an outbound message. It returns false when the connection
// isn't open or the send queue is full.
func (cl *Client) Send(kind MessageKind, payload []byte) bool {
	if cl.conn == nil {
		return false
	}
	return cl.conn.Send(kind, payload)
}

// Close starts a clean shutdown of the connection, per Connection.Close.
func (cl *Client) Close() error {
	if cl.conn == nil {
		return nil
	}
	return cl.conn.Close()
}

// Dial is a convenience for fire-and-forget clients that don't need to
// register handlers before connecting: it builds a Client, connects, and
// returns it already Open.
func Dial(ctx context.Context, rawURL string, opts *Options) (*Client, error) {
	cl := NewClient(opts)
	if err := cl.Dial(ctx, rawURL); err != nil {
		return nil, err
	}
	return cl, nil
}
