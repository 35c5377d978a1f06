package ws

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nettywire/wscore/internal/flatepipe"
)

// ConnState is a Connection's position in the lifecycle described by this
// engine's state machine: Handshaking while the opening handshake is in
// flight, Open once frames may be exchanged, Closing once a close frame has
// gone out or come in but the transport is still settling, and Closed once
// teardown has begun: the transport is being closed and on_close fires
// right after the state changes.
type ConnState int32

const (
	StateHandshaking ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type sendItem struct {
	opcode  OpCode
	payload []byte
}

// Connection is one live WebSocket session, server- or client-side. It owns
// a read goroutine (run) and a write goroutine (writeLoop); all other
// methods are safe to call from any goroutine.
type Connection struct {
	id      uint64
	traceID uuid.UUID
	role    Role

	transport Transport
	opts      *Options
	logger    zerolog.Logger

	state atomic.Int32

	request *Request

	deflateNegotiated bool
	deflator          *flatepipe.Deflator
	inflator          *flatepipe.Inflator
	noContextTakeover bool

	asm assembler

	sendCh  chan sendItem
	writeMu sync.Mutex

	closedCh  chan struct{}
	closeOnce sync.Once

	onMessage func(*Connection, Message)
	onClose   func(*Connection, error)
}

func newConnection(id uint64, role Role, transport Transport, opts *Options, logger zerolog.Logger) *Connection {
	c := &Connection{
		id:        id,
		traceID:   uuid.New(),
		role:      role,
		transport: transport,
		opts:      opts,
		sendCh:    make(chan sendItem, opts.SendQueueSize),
		closedCh:  make(chan struct{}),
	}
	c.logger = logger.With().Uint64("conn_id", id).Str("trace_id", c.traceID.String()).Logger()
	c.asm.maxMessageSize = opts.MaxMessageSize
	c.state.Store(int32(StateHandshaking))
	return c
}

// ID returns the connection's server-local sequence number (always 0 on the
// client side, which has exactly one connection per Client).
func (c *Connection) ID() uint64 { return c.id }

// Request returns the parsed opening-handshake request. On the client side
// it is a Request carrying only the negotiated Protocol.
func (c *Connection) Request() *Request { return c.request }

// IsHandshake reports whether the opening handshake is still in progress.
func (c *Connection) IsHandshake() bool {
	return ConnState(c.state.Load()) == StateHandshaking
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// completeHandshake transitions Handshaking -> Open and wires up
// compression state once the opening handshake has succeeded.
func (c *Connection) completeHandshake(deflateNegotiated bool) {
	c.deflateNegotiated = deflateNegotiated && c.opts.Deflate
	if c.deflateNegotiated {
		windowSize := flatepipe.WindowSize(c.opts.windowSizeBits())
		var err error
		c.deflator, err = flatepipe.NewDeflator(windowSize)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to initialize deflate writer, disabling compression for this connection")
			c.deflateNegotiated = false
		} else {
			c.inflator = flatepipe.NewInflator()
		}
	}
	// This engine never tracks a sliding window across messages on either
	// side: every connection that negotiates deflate resets both directions
	// after each message, equivalent to always requesting
	// {client,server}_no_context_takeover.
	c.noContextTakeover = true
	c.state.Store(int32(StateOpen))
}

// Send enqueues an outbound data message. It returns false without
// blocking when the connection is not open or the outbound queue is full
// (backpressure), leaving it to the caller to decide whether to retry, drop,
// or close the connection.
func (c *Connection) Send(kind MessageKind, payload []byte) bool {
	if ConnState(c.state.Load()) != StateOpen {
		return false
	}
	select {
	case c.sendCh <- sendItem{opcode: OpCode(kind), payload: payload}:
		return true
	case <-c.closedCh:
		return false
	default:
		return false
	}
}

// Close starts a clean shutdown: it sends a close frame (if one hasn't gone
// out already), waits up to opts.CloseGracePeriod for the peer's close frame
// or for the read loop to observe the transport going away, and then closes
// the transport. It is idempotent and safe to call from any goroutine,
// including from within an on_message/on_close callback.
func (c *Connection) Close() error {
	return c.closeWithCode(CloseNormalClosure, "")
}

func (c *Connection) closeWithCode(code uint16, reason string) error {
	if !c.transitionToClosing() {
		return nil
	}

	c.writeMu.Lock()
	_, err := c.transport.Write(encodeControlFrame(OpClose, EncodeCloseInfo(code, reason), c.role))
	c.writeMu.Unlock()

	select {
	case <-c.closedCh:
	case <-time.After(c.opts.CloseGracePeriod):
		_ = c.transport.Close()
	}
	return err
}

func (c *Connection) transitionToClosing() bool {
	for {
		cur := ConnState(c.state.Load())
		if cur == StateClosing || cur == StateClosed {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(StateClosing)) {
			return true
		}
	}
}

// run is the read loop: it decodes frames from transport, dispatches
// control frames inline, feeds data frames to the assembler, and delivers
// completed messages to on_message. It returns once the transport is gone
// or a protocol violation ends the connection, and always tears the
// connection down exactly once before returning.
func (c *Connection) run(leftover []byte) {
	var failure error
	defer func() { c.teardown(failure) }()

	buf := append([]byte(nil), leftover...)
	readBuf := make([]byte, c.opts.ReadBufferSize)

	for {
		for {
			fr, n, err := DecodeFrame(buf, DecodeContext{
				Role:               c.role,
				DeflateNegotiated:  c.deflateNegotiated,
				ExpectContinuation: c.asm.inProgress(),
				MaxFrameSize:       c.opts.MaxFrameSize,
			})
			if err != nil {
				failure = err
				c.failWithProtocolError(err)
				return
			}
			if n == 0 {
				break
			}
			buf = buf[n:]

			stop, handleErr := c.handleFrame(fr)
			if handleErr != nil {
				failure = handleErr
			}
			if stop {
				return
			}
		}

		n, err := c.transport.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				failure = transportError(err)
			}
			return
		}
	}
}

// handleFrame dispatches one decoded frame. stop reports whether the read
// loop must exit (the connection is ending).
func (c *Connection) handleFrame(fr Frame) (stop bool, err error) {
	switch fr.Opcode {
	case OpClose:
		code, reason := ParseCloseInfo(fr.Payload)
		c.beginPeerCloseTeardown()
		return true, closedByPeer(code, reason)

	case OpPing:
		if c.opts.PingPong {
			c.writeMu.Lock()
			_, werr := c.transport.Write(encodeControlFrame(OpPong, fr.Payload, c.role))
			c.writeMu.Unlock()
			if werr != nil {
				return true, transportError(werr)
			}
		}
		return false, nil

	case OpPong:
		return false, nil

	default: // OpContinuation, OpText, OpBinary
		done, kind, payload, compressed, err := c.asm.addFrame(fr)
		if err != nil {
			c.failWithProtocolError(err)
			return true, err
		}
		if !done {
			return false, nil
		}
		if compressed {
			if !c.deflateNegotiated {
				cerr := protocolError(CloseProtocolError, ErrRsv1Invalid)
				c.failWithProtocolError(cerr)
				return true, cerr
			}
			inflated, ierr := c.inflator.Inflate(payload)
			if ierr != nil {
				cerr := compressionError(ierr)
				c.failWithCode(cerr.CloseCode, ierr.Error())
				return true, cerr
			}
			payload = inflated
			if c.noContextTakeover {
				c.inflator.Reset()
			}
		}
		if c.onMessage != nil {
			c.safeCallVoid(func() { c.onMessage(c, Message{Kind: MessageKind(kind), Payload: payload}) })
		}
		return false, nil
	}
}

// beginPeerCloseTeardown implements the responder side of the closing
// handshake: echo a close frame back (RFC 6455, section 5.5.1 permits an
// empty body on the echo even when the peer's close carried a code/reason).
// The caller tears the transport down right after this returns (run's
// defer), rather than lingering for more input that will never come.
func (c *Connection) beginPeerCloseTeardown() {
	if c.transitionToClosing() {
		c.writeMu.Lock()
		_, _ = c.transport.Write(encodeControlFrame(OpClose, nil, c.role))
		c.writeMu.Unlock()
	}
}

// failWithProtocolError implements "fail the connection": best-effort send a
// close frame carrying the violation's close code, then tear the transport
// down. The peer may never see it if the transport is already broken, which
// is fine — this is cleanup, not a guarantee.
func (c *Connection) failWithProtocolError(err error) {
	code := CloseProtocolError
	if wsErr, ok := err.(*Error); ok && wsErr.CloseCode != 0 {
		code = wsErr.CloseCode
	}
	c.failWithCode(code, "")
}

func (c *Connection) failWithCode(code uint16, reason string) {
	if c.transitionToClosing() {
		c.writeMu.Lock()
		_, _ = c.transport.Write(encodeControlFrame(OpClose, EncodeCloseInfo(code, reason), c.role))
		c.writeMu.Unlock()
	}
	_ = c.transport.Close()
}

// writeLoop drains the outbound queue, applying permessage-deflate when
// negotiated, until teardown closes closedCh. Messages still queued at that
// point are dropped.
func (c *Connection) writeLoop() {
	for {
		select {
		case item := <-c.sendCh:
			c.writeMessage(item.opcode, item.payload)
		case <-c.closedCh:
			return
		}
	}
}

func (c *Connection) writeMessage(opcode OpCode, payload []byte) {
	rsv1 := false
	if c.deflateNegotiated && len(payload) >= c.opts.CompressThreshold {
		compressed, err := c.deflator.Deflate(payload)
		if err != nil {
			c.logger.Warn().Err(err).Msg("compression failed, closing connection")
			c.failWithCode(CloseInternalError, "")
			return
		}
		payload = compressed
		rsv1 = true
		if c.noContextTakeover {
			c.deflator.Reset()
		}
	}

	frame := EncodeFrame(true, rsv1, opcode, payload, c.role)
	c.writeMu.Lock()
	_, err := c.transport.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		_ = c.transport.Close()
	}
}

// teardown fires on_close exactly once, closes closedCh (which stops
// writeLoop), and marks the connection Closed. It is safe to call more than once (only the
// first call has any effect) and is always invoked from run's defer.
func (c *Connection) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		_ = c.transport.Close()
		if c.onClose != nil {
			c.safeCallVoid(func() { c.onClose(c, cause) })
		}
		close(c.closedCh)
	})
}

// safeCallVoid recovers a panic from a user callback, logging it as a
// KindUserCallback event instead of letting it take down the read loop. A
// panicking callback never closes the connection by itself; a well-behaved
// caller that wants to abort should call Close() explicitly.
func (c *Connection) safeCallVoid(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().
				Interface("panic", r).
				Msg("recovered from a panic in a user callback")
		}
	}()
	fn()
}

// safeCall is safeCallVoid for callbacks that return an error.
func (c *Connection) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().
				Interface("panic", r).
				Msg("recovered from a panic in a user callback")
			err = &Error{Kind: KindUserCallback, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}
