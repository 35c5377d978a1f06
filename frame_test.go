package ws

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTripClient(t *testing.T) {
	payload := []byte("hello world")
	encoded := EncodeFrame(true, false, OpText, payload, RoleClient)

	fr, n, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("consumed %d bytes, want %d", n, len(encoded))
	}
	if !fr.Masked {
		t.Fatalf("client-encoded frame must be masked")
	}
	if !bytes.Equal(fr.Payload, payload) {
		t.Fatalf("payload = %q, want %q", fr.Payload, payload)
	}
}

func TestEncodeDecodeRoundTripServer(t *testing.T) {
	payload := []byte("server says hi")
	encoded := EncodeFrame(true, false, OpBinary, payload, RoleServer)

	fr, n, err := DecodeFrame(encoded, DecodeContext{Role: RoleClient})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("consumed %d bytes, want %d", n, len(encoded))
	}
	if fr.Masked {
		t.Fatalf("server-encoded frame must not be masked")
	}
	if !bytes.Equal(fr.Payload, payload) {
		t.Fatalf("payload = %q, want %q", fr.Payload, payload)
	}
}

func TestDecodeFrameNeedsMoreBytes(t *testing.T) {
	encoded := EncodeFrame(true, false, OpText, []byte("hello"), RoleServer)
	for i := 0; i < len(encoded); i++ {
		_, n, err := DecodeFrame(encoded[:i], DecodeContext{Role: RoleClient})
		if err != nil {
			t.Fatalf("prefix of length %d: unexpected error: %v", i, err)
		}
		if n != 0 {
			t.Fatalf("prefix of length %d: consumed %d bytes, want 0", i, n)
		}
	}
}

func TestDecodeFrameLongPayloadLengths(t *testing.T) {
	for _, n := range []int{125, 126, 65535, 65536} {
		payload := bytes.Repeat([]byte{'x'}, n)
		encoded := EncodeFrame(true, false, OpBinary, payload, RoleServer)
		fr, consumed, err := DecodeFrame(encoded, DecodeContext{Role: RoleClient})
		if err != nil {
			t.Fatalf("length %d: unexpected error: %v", n, err)
		}
		if consumed != len(encoded) {
			t.Fatalf("length %d: consumed %d, want %d", n, consumed, len(encoded))
		}
		if len(fr.Payload) != n {
			t.Fatalf("length %d: payload length = %d", n, len(fr.Payload))
		}
	}
}

func TestDecodeFrameRejectsReservedBits(t *testing.T) {
	encoded := EncodeFrame(true, false, OpText, []byte("x"), RoleServer)
	encoded[0] |= 0x20 // set RSV2
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleClient})
	assertProtocolError(t, err, CloseProtocolError)
}

func TestDecodeFrameRejectsUnmaskedClientFrame(t *testing.T) {
	encoded := EncodeFrame(true, false, OpText, []byte("x"), RoleServer)
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer})
	assertProtocolError(t, err, CloseProtocolError)
}

func TestDecodeFrameRejectsMaskedServerFrame(t *testing.T) {
	encoded := EncodeFrame(true, false, OpText, []byte("x"), RoleClient)
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleClient})
	assertProtocolError(t, err, CloseProtocolError)
}

func TestDecodeFrameRejectsFragmentedControlFrame(t *testing.T) {
	encoded := EncodeFrame(false, false, OpPing, []byte("x"), RoleClient)
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer})
	assertProtocolError(t, err, CloseProtocolError)
}

func TestDecodeFrameRejectsOversizedControlFrame(t *testing.T) {
	encoded := EncodeFrame(true, false, OpPing, bytes.Repeat([]byte{'x'}, 126), RoleClient)
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer})
	assertProtocolError(t, err, CloseProtocolError)
}

func TestDecodeFrameRejectsUnknownOpcode(t *testing.T) {
	encoded := EncodeFrame(true, false, OpText, []byte("x"), RoleClient)
	encoded[0] = (encoded[0] &^ 0x0f) | 0x03 // opcode 0x3 is reserved
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer})
	assertProtocolError(t, err, CloseProtocolError)
}

func TestDecodeFrameRejectsRsv1WithoutNegotiation(t *testing.T) {
	encoded := EncodeFrame(true, true, OpText, []byte("x"), RoleClient)
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer, DeflateNegotiated: false})
	assertProtocolError(t, err, CloseProtocolError)
}

func TestDecodeFrameAllowsRsv1WhenNegotiated(t *testing.T) {
	encoded := EncodeFrame(true, true, OpText, []byte("x"), RoleClient)
	fr, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer, DeflateNegotiated: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fr.Rsv1 {
		t.Fatalf("expected RSV1 to survive decode")
	}
}

func TestDecodeFrameRejectsRsv1OnContinuation(t *testing.T) {
	encoded := EncodeFrame(true, true, OpContinuation, []byte("x"), RoleClient)
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer, DeflateNegotiated: true, ExpectContinuation: true})
	assertProtocolError(t, err, CloseProtocolError)
}

func TestDecodeFrameEnforcesMaxFrameSize(t *testing.T) {
	encoded := EncodeFrame(true, false, OpBinary, bytes.Repeat([]byte{'y'}, 100), RoleClient)
	_, _, err := DecodeFrame(encoded, DecodeContext{Role: RoleServer, MaxFrameSize: 10})
	assertProtocolError(t, err, CloseMessageTooBig)
}

func assertProtocolError(t *testing.T, err error, wantCode uint16) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error")
	}
	wsErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if wsErr.Kind != KindProtocol {
		t.Fatalf("Kind = %v, want KindProtocol", wsErr.Kind)
	}
	if wsErr.CloseCode != wantCode {
		t.Fatalf("CloseCode = %d, want %d", wsErr.CloseCode, wantCode)
	}
}
