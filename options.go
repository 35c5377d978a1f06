package ws

import (
	"crypto/tls"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Options configures both Server and Client. The zero value is not ready to
// use; start from DefaultOptions.
type Options struct {
	// Deflate enables offering/accepting the permessage-deflate extension
	// (RFC 7692). When false, this engine never sets RSV1 and rejects any
	// peer that does.
	Deflate bool `yaml:"deflate"`

	// CompressionWindowBits is the RFC 7692 max_window_bits value (8-15)
	// that sizes this engine's outbound deflate window. It is not sent to
	// the peer and does not bound inbound data. Values outside 8-15
	// (including 0) use the RFC default, 15.
	CompressionWindowBits int `yaml:"compression_window_bits"`

	// CompressThreshold is the minimum outbound message size, in bytes,
	// this engine will bother compressing. Below it, a message is sent
	// uncompressed even when deflate is negotiated, since DEFLATE has fixed
	// overhead that dominates on tiny payloads.
	CompressThreshold int `yaml:"compress_threshold"`

	// PingPong enables automatic pong replies to peer pings. It does not
	// control a keepalive ping timer; this engine is a passive responder,
	// matching this package's scope (heartbeat scheduling is left to the
	// embedding application).
	PingPong bool `yaml:"ping_pong"`

	// ReusePort binds the server listener with SO_REUSEPORT via
	// libp2p/go-reuseport.
	ReusePort bool `yaml:"reuse_port"`

	// Subprotocols lists the application subprotocols this engine supports,
	// in preference order, for Sec-WebSocket-Protocol negotiation (RFC
	// 6455, section 1.9). The server selects the first entry the client
	// also offered; the client sends the whole list as its offer. No
	// selection algorithm beyond first-match is implemented, matching this
	// engine's pass-through-only subprotocol scope.
	Subprotocols []string `yaml:"subprotocols"`

	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`

	// MaxFrameSize and MaxMessageSize bound, respectively, one wire frame's
	// payload and one reassembled application message. Zero means
	// unbounded.
	MaxFrameSize   int64 `yaml:"max_frame_size"`
	MaxMessageSize int64 `yaml:"max_message_size"`

	// SendQueueSize bounds the outbound backpressure channel per
	// connection. Send on a full queue fails rather than blocking the
	// caller.
	SendQueueSize int `yaml:"send_queue_size"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	CloseGracePeriod time.Duration `yaml:"close_grace_period"`

	// TLS, when non-nil, is used by Dial for wss:// URLs and by Listen to
	// have the server terminate TLS itself instead of handing plaintext
	// TCP to Connections.
	TLS *tls.Config `yaml:"-"`

	Logger zerolog.Logger `yaml:"-"`
}

// DefaultOptions returns an Options populated with this engine's defaults:
// deflate off, a 16 MiB frame/message ceiling, a modest send queue, and a
// zerolog console logger writing to stderr.
func DefaultOptions() *Options {
	return &Options{
		CompressionWindowBits: 15,
		ReadBufferSize:        4096,
		WriteBufferSize:       4096,
		MaxFrameSize:          16 << 20,
		MaxMessageSize:        16 << 20,
		SendQueueSize:         256,
		HandshakeTimeout:      10 * time.Second,
		CloseGracePeriod:      time.Second,
		Logger:                zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger(),
	}
}

// LoadOptionsYAML parses YAML into an Options that starts from
// DefaultOptions, so a config file only needs to mention the fields it
// wants to override.
func LoadOptionsYAML(data []byte) (*Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, configError(err)
	}
	return opts, nil
}

func (o *Options) windowSizeBits() int {
	if o.CompressionWindowBits < 8 || o.CompressionWindowBits > 15 {
		return 15
	}
	return o.CompressionWindowBits
}
