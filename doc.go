// Package ws implements the core WebSocket protocol: the RFC 6455 opening
// handshake, frame codec, fragmentation and control-frame handling, and the
// RFC 7692 permessage-deflate extension, for both server and client roles
// over any blocking, deadline-aware duplex byte stream (a net.Conn or
// *tls.Conn satisfies Transport directly).
//
// This package owns the wire protocol and the connection state machine. It
// deliberately does not own: a network listener abstraction beyond the
// minimal glue in transport.go, a full HTTP request/response model (Request
// is a narrow slice of one), or process-level concerns like configuration
// files and signal handling — those are left to the embedding application.
package ws
