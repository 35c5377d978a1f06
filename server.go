package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Server accepts WebSocket connections on a single TCP listener. Handlers
// are registered with the OnXxx setters before calling Listen; changing
// them afterward races with in-flight connections and is not supported.
type Server struct {
	addr string
	opts *Options

	listener net.Listener
	nextID   atomic.Uint64
	conns    sync.Map // uint64 -> *Connection

	onRequest func(*Request) error
	onConnect func(*Connection)
	onMessage func(*Connection, Message)
	onClose   func(*Connection, error)

	logger zerolog.Logger

	closeOnce sync.Once
	closedCh  chan struct{}
}

// NewServer builds a Server bound to addr (host:port) once Listen is
// called. A nil opts uses DefaultOptions().
func NewServer(addr string, opts *Options) *Server {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Server{
		addr:     addr,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "ws.Server").Str("addr", addr).Logger(),
		closedCh: make(chan struct{}),
	}
}

// OnRequest registers a callback invoked with the parsed opening-handshake
// request before the 101 response is sent. A returned error is logged but
// cannot veto the handshake: by the time on_request runs, the 101 response
// has already been built (it just hasn't been written yet). Rejecting
// connections by request content needs to happen at a layer above this one,
// e.g. by closing the Connection immediately from on_connect.
func (s *Server) OnRequest(fn func(*Request) error) { s.onRequest = fn }

// OnConnect registers a callback invoked once a connection reaches the Open
// state, after on_request and before any messages are delivered.
func (s *Server) OnConnect(fn func(*Connection)) { s.onConnect = fn }

// OnMessage registers the callback invoked for every fully reassembled,
// decompressed application message.
func (s *Server) OnMessage(fn func(*Connection, Message)) { s.onMessage = fn }

// OnClose registers the callback invoked exactly once per connection, with
// the error (if any) that ended it.
func (s *Server) OnClose(fn func(*Connection, error)) { s.onClose = fn }

// Listen binds the configured address and starts accepting connections in
// the background. It returns once the listener is bound; Accept errors
// after that point are logged, not returned.
func (s *Server) Listen() error {
	ln, err := newListener(s.addr, s.opts)
	if err != nil {
		return configError(err)
	}
	s.listener = ln
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address. Only valid after Listen
// succeeds.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closedCh:
				return
			default:
				s.logger.Error().Err(err).Msg("accept failed, accept loop exiting")
				return
			}
		}
		configureAcceptedConn(conn)
		id := s.nextID.Add(1)
		go s.serve(id, conn)
	}
}

func (s *Server) serve(id uint64, conn net.Conn) {
	c := newConnection(id, RoleServer, conn, s.opts, s.logger)

	if s.opts.HandshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	}
	result, leftover, err := serverHandshake(conn, s.opts)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("conn_id", id).Msg("opening handshake failed")
		_ = conn.Close()
		if s.onClose != nil {
			c.safeCallVoid(func() { s.onClose(c, err) })
		}
		return
	}
	if s.opts.HandshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Time{})
	}

	c.request = result.request
	s.conns.Store(id, c)
	defer s.conns.Delete(id)

	if s.onRequest != nil {
		if reqErr := c.safeCall(func() error { return s.onRequest(result.request) }); reqErr != nil {
			s.logger.Warn().Err(reqErr).Uint64("conn_id", id).
				Msg("on_request returned an error; the 101 response is already committed and will still be sent")
		}
	}

	if _, werr := conn.Write(result.response); werr != nil {
		s.logger.Warn().Err(werr).Uint64("conn_id", id).Msg("failed to write handshake response")
		_ = conn.Close()
		return
	}

	c.completeHandshake(result.deflateAccepted)
	c.onMessage = s.onMessage
	c.onClose = func(conn *Connection, cause error) {
		if s.onClose != nil {
			s.onClose(conn, cause)
		}
	}

	if s.onConnect != nil {
		c.safeCallVoid(func() { s.onConnect(c) })
	}

	go c.writeLoop()
	c.run(leftover)
}

// Broadcast enqueues payload on every currently connected Connection's send
// queue and returns how many accepted it. A full per-connection queue is
// skipped rather than blocking the broadcast.
func (s *Server) Broadcast(kind MessageKind, payload []byte) int {
	sent := 0
	s.conns.Range(func(_, v interface{}) bool {
		if v.(*Connection).Send(kind, payload) {
			sent++
		}
		return true
	})
	return sent
}

// Close stops accepting new connections and closes every currently open
// connection.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closedCh)
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.conns.Range(func(_, v interface{}) bool {
			_ = v.(*Connection).Close()
			return true
		})
	})
	return err
}
