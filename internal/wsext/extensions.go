// Package wsext parses and negotiates the Sec-WebSocket-Extensions header
// for permessage-deflate (RFC 7692), using gobwas/httphead to tokenize the
// comma/semicolon option grammar RFC 6455, section 9.1 shares with HTTP
// parameterized headers.
package wsext

import (
	"strings"

	"github.com/gobwas/httphead"
)

// ExtensionName is the token identifying permessage-deflate in
// Sec-WebSocket-Extensions, per RFC 7692, section 7.
const ExtensionName = "permessage-deflate"

// HasPermessageDeflate reports whether headerValue (a raw
// Sec-WebSocket-Extensions value) includes a permessage-deflate offer.
// Unknown extensions are ignored, matching this engine's pass-through
// policy for anything other than permessage-deflate.
//
// This engine does not negotiate per-offer parameters: it never tracks
// inflate state across messages in either direction, so its window size is
// fixed by Options.CompressionWindowBits rather than by whatever
// server_max_window_bits/client_max_window_bits/*_no_context_takeover the
// peer proposes. Those parameters are accepted-but-ignored, matching
// spec.md §4.4's resolution for unsupported parameter values; the engine
// always responds with the fixed NegotiatedResponse below.
func HasPermessageDeflate(headerValue string) bool {
	if strings.TrimSpace(headerValue) == "" {
		return false
	}
	options, ok := httphead.ParseOptions([]byte(headerValue), nil)
	if !ok {
		return false
	}
	for _, opt := range options {
		if strings.EqualFold(string(opt.Name), ExtensionName) {
			return true
		}
	}
	return false
}

// NegotiatedResponse is the fixed response this engine always offers once it
// decides to accept a permessage-deflate offer: it never tracks inflate
// state across messages on either direction of its own accord, so it always
// asks for (and grants) server_no_context_takeover, and always caps the
// client's window at 15 bits, the RFC 7692 default, regardless of what the
// client proposed.
const NegotiatedResponse = ExtensionName + "; server_no_context_takeover; client_max_window_bits=15"

// NegotiateServer decides whether to accept permessage-deflate for an
// incoming client offer. It returns false when the client did not offer
// the extension at all.
func NegotiateServer(headerValue string) bool {
	return HasPermessageDeflate(headerValue)
}

// ClientOfferHeader is the request-side offer this engine sends when
// dialing out with compression enabled.
const ClientOfferHeader = ExtensionName + "; client_max_window_bits"
