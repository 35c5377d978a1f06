// Package flatepipe wraps klauspost/compress/flate into the exact framing
// RFC 7692 (permessage-deflate) requires: raw DEFLATE with no zlib header,
// a configurable sliding-window size, and the SYNC_FLUSH trailer
// (0x00 0x00 0xff 0xff) stripped from every compressed message on the way
// out and restored before inflation on the way in. It is grounded on the
// flate wrapper found in the WebSocket transport examples this module was
// built from, generalized from a fixed window to a configurable
// max_window_bits value.
package flatepipe

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// tail is the DEFLATE sync-flush trailer defined by RFC 7692, section 7.2.1.
var tail = [4]byte{0x00, 0x00, 0xff, 0xff}

// finalBlock is an empty, final stored DEFLATE block. Appended after tail, it
// lets the reader end at io.EOF instead of io.ErrUnexpectedEOF, since a
// sync-flushed message never carries a final block of its own.
var finalBlock = [5]byte{0x01, 0x00, 0x00, 0xff, 0xff}

// maxWindow is the largest sliding window RFC 7692 allows (2^15 bytes).
const maxWindow = 1 << 15

// WindowSize converts an RFC 7692 max_window_bits value (8-15) into the
// byte window klauspost/compress/flate expects.
func WindowSize(bits int) int {
	if bits < 8 {
		bits = 8
	}
	if bits > 15 {
		bits = 15
	}
	return 1 << uint(bits)
}

// Deflator compresses one message payload at a time into a permessage-deflate
// wire blob. It is not safe for concurrent use.
type Deflator struct {
	buf bytes.Buffer
	w   *flate.Writer
}

// NewDeflator builds a Deflator using the given RFC 7692 window size in
// bytes (see WindowSize).
func NewDeflator(windowSize int) (*Deflator, error) {
	d := &Deflator{}
	w, err := flate.NewWriterWindow(&d.buf, windowSize)
	if err != nil {
		return nil, err
	}
	d.w = w
	return d, nil
}

// Deflate compresses payload and returns the RFC 7692 wire representation:
// the raw DEFLATE stream with the trailing sync-flush block removed. The
// returned slice is owned by the caller.
func (d *Deflator) Deflate(payload []byte) ([]byte, error) {
	d.buf.Reset()
	if _, err := d.w.Write(payload); err != nil {
		return nil, err
	}
	if err := d.w.Flush(); err != nil {
		return nil, err
	}

	out := d.buf.Bytes()
	if len(out) >= 4 && [4]byte(out[len(out)-4:]) == tail {
		out = out[:len(out)-4]
	}
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

// Reset clears compression state, as required after every message when
// server_no_context_takeover (or client_no_context_takeover, on the client
// side) was negotiated.
func (d *Deflator) Reset() {
	d.buf.Reset()
	d.w.Reset(&d.buf)
}

// Inflator reverses Deflator's framing. It is not safe for concurrent use.
type Inflator struct {
	src  *bytes.Reader
	fr   io.ReadCloser
	dict []byte
}

// NewInflator builds an Inflator. Window size does not need to be supplied:
// raw DEFLATE carries no window declaration, and the reader accepts
// back-references up to 32 KiB, the largest window RFC 7692 allows. No
// smaller bound is enforced.
func NewInflator() *Inflator {
	infl := &Inflator{src: bytes.NewReader(nil)}
	infl.fr = flate.NewReader(infl.src)
	return infl
}

// Inflate restores the sync-flush trailer Deflate stripped and decompresses
// the result. The output of earlier calls since the last Reset serves as
// the history for back-references (context takeover).
func (infl *Inflator) Inflate(payload []byte) ([]byte, error) {
	full := make([]byte, 0, len(payload)+len(tail)+len(finalBlock))
	full = append(full, payload...)
	full = append(full, tail[:]...)
	full = append(full, finalBlock[:]...)

	infl.src.Reset(full)
	if resetter, ok := infl.fr.(flate.Resetter); ok {
		if err := resetter.Reset(infl.src, infl.dict); err != nil {
			return nil, err
		}
	}
	out, err := io.ReadAll(infl.fr)
	if err != nil {
		return nil, err
	}
	infl.dict = append(infl.dict, out...)
	if len(infl.dict) > maxWindow {
		infl.dict = append([]byte(nil), infl.dict[len(infl.dict)-maxWindow:]...)
	}
	return out, nil
}

// Reset clears decompression state, mirroring Deflator.Reset for the
// receiving side of a no-context-takeover negotiation.
func (infl *Inflator) Reset() {
	infl.dict = nil
	infl.src.Reset(nil)
	if resetter, ok := infl.fr.(flate.Resetter); ok {
		_ = resetter.Reset(infl.src, nil)
	}
}
