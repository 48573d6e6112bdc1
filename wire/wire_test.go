package wire

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testMsg struct {
	A string `cbor:"a"`
	B int    `cbor:"b"`
}

func TestFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	want := testMsg{A: "hello", B: 42}
	errc := make(chan error, 1)
	go func() {
		errc <- NewConn(server).WriteFrame(&want)
	}()

	var got testMsg
	if err := NewConn(client).ReadFrame(&got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch: %s", diff)
	}
}

func TestRawFrameForwarding(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	want := testMsg{A: "relayed", B: 7}
	errc := make(chan error, 1)
	go func() {
		errc <- NewConn(server).WriteFrame(&want)
	}()

	raw, err := NewConn(client).ReadRawFrame()
	if err != nil {
		t.Fatalf("ReadRawFrame: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	server2, client2 := net.Pipe()
	defer server2.Close()
	defer client2.Close()
	go func() {
		errc <- NewConn(server2).WriteRawFrame(raw)
	}()
	var got testMsg
	if err := NewConn(client2).ReadFrame(&got); err != nil {
		t.Fatalf("ReadFrame after relay: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteRawFrame: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("relayed frame mismatch: %s", diff)
	}
}
