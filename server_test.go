package ws

import "testing"

func TestServerListenAndAddr(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer s.Close()

	if s.Addr() == nil {
		t.Fatalf("expected a bound address")
	}
}

func TestServerBroadcastOnEmptyServer(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	if n := s.Broadcast(Text, []byte("hi")); n != 0 {
		t.Fatalf("Broadcast on an empty server = %d, want 0", n)
	}
}

func TestServerCloseIsIdempotent(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
