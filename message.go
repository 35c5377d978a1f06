package ws

// MessageKind is the application-visible type of an assembled message:
// text (UTF-8) or binary. The numeric values intentionally line up with
// the corresponding data opcodes.
type MessageKind OpCode

const (
	Text   MessageKind = MessageKind(OpText)
	Binary MessageKind = MessageKind(OpBinary)
)

func (k MessageKind) String() string {
	switch k {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one complete, reassembled, (already decompressed) application
// message delivered to an on_message callback.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// assembler reassembles a sequence of data frames (one unfragmented frame,
// or a first frame plus zero or more continuations) into a single message.
// It does not decompress; the caller runs the result through an Inflator
// when Compressed is true. It holds no knowledge of control frames, which
// interleave around it at the Connection layer without disturbing its state.
type assembler struct {
	active     bool
	kind       OpCode
	compressed bool
	buf        []byte

	maxMessageSize int64
}

// addFrame feeds one data frame (opcode continuation, text, or binary) into
// the assembler. done is true once fin=1 closes out the message, in which
// case kind/payload/compressed describe the completed message and the
// assembler is reset for the next one.
func (a *assembler) addFrame(fr Frame) (done bool, kind OpCode, payload []byte, compressed bool, err error) {
	if !a.active {
		if fr.Opcode == OpContinuation {
			return false, 0, nil, false, protocolError(CloseProtocolError, ErrUnexpectedContinuation)
		}
		a.active = true
		a.kind = fr.Opcode
		a.compressed = fr.Rsv1
		a.buf = a.buf[:0]
	} else if fr.Opcode != OpContinuation {
		return false, 0, nil, false, protocolError(CloseProtocolError, ErrExpectedContinuation)
	}

	if a.maxMessageSize > 0 && int64(len(a.buf)+len(fr.Payload)) > a.maxMessageSize {
		a.reset()
		return false, 0, nil, false, protocolError(CloseMessageTooBig, ErrMessageTooLarge)
	}
	a.buf = append(a.buf, fr.Payload...)

	if !fr.Fin {
		return false, 0, nil, false, nil
	}

	kind, payload, compressed = a.kind, a.buf, a.compressed
	a.buf = nil
	a.active = false
	a.kind = 0
	a.compressed = false
	return true, kind, payload, compressed, nil
}

// inProgress reports whether a fragmented message is currently open, i.e.
// whether the next data frame must be a continuation.
func (a *assembler) inProgress() bool { return a.active }

func (a *assembler) reset() {
	a.active = false
	a.kind = 0
	a.compressed = false
	a.buf = nil
}
