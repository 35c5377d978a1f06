package ws

import (
	"bytes"
	"testing"
)

func TestAssemblerSingleFrame(t *testing.T) {
	var a assembler
	done, kind, payload, compressed, err := a.addFrame(Frame{Fin: true, Opcode: OpText, Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done || kind != OpText || compressed {
		t.Fatalf("unexpected result: done=%v kind=%v compressed=%v", done, kind, compressed)
	}
	if !bytes.Equal(payload, []byte("hello")) {
		t.Fatalf("payload = %q", payload)
	}
	if a.inProgress() {
		t.Fatalf("assembler should be idle after a complete message")
	}
}

func TestAssemblerFragmentedMessage(t *testing.T) {
	var a assembler
	done, _, _, _, err := a.addFrame(Frame{Fin: false, Opcode: OpBinary, Payload: []byte("ab")})
	if err != nil || done {
		t.Fatalf("first fragment should not complete: done=%v err=%v", done, err)
	}
	if !a.inProgress() {
		t.Fatalf("assembler should report in-progress mid-fragmentation")
	}
	done, kind, payload, _, err := a.addFrame(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("cd")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done || kind != OpBinary {
		t.Fatalf("unexpected result: done=%v kind=%v", done, kind)
	}
	if !bytes.Equal(payload, []byte("abcd")) {
		t.Fatalf("payload = %q, want abcd", payload)
	}
}

func TestAssemblerRejectsUnexpectedContinuation(t *testing.T) {
	var a assembler
	_, _, _, _, err := a.addFrame(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("x")})
	if err == nil {
		t.Fatalf("expected error for continuation with no message in progress")
	}
}

func TestAssemblerRejectsInterleavedDataOpcode(t *testing.T) {
	var a assembler
	if _, _, _, _, err := a.addFrame(Frame{Fin: false, Opcode: OpText, Payload: []byte("a")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, _, _, err := a.addFrame(Frame{Fin: true, Opcode: OpBinary, Payload: []byte("b")})
	if err == nil {
		t.Fatalf("expected error: a second data opcode mid-fragmentation must be rejected")
	}
}

func TestAssemblerEnforcesMaxMessageSize(t *testing.T) {
	a := assembler{maxMessageSize: 4}
	_, _, _, _, err := a.addFrame(Frame{Fin: true, Opcode: OpText, Payload: []byte("too long")})
	if err == nil {
		t.Fatalf("expected max message size violation")
	}
	wsErr, ok := err.(*Error)
	if !ok || wsErr.CloseCode != CloseMessageTooBig {
		t.Fatalf("expected CloseMessageTooBig, got %v", err)
	}
}
