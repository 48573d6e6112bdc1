package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/wire"
)

// startFakeEnclave listens on a loopback TCP socket and echoes back a fixed
// response for any raw request frame it receives, standing in for the real
// enclave's export_keys handler.
func startFakeEnclave(t *testing.T, response []byte) config.SocketConfig {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				wc := wire.NewConn(c)
				if _, err := wc.ReadRawFrame(); err != nil {
					return
				}
				wc.WriteRawFrame(response)
			}(conn)
		}
	}()

	host, port := splitHostPort(t, ln.Addr().String())
	return config.SocketConfig{Host: host, Port: port}
}

func splitHostPort(t *testing.T, addr string) (string, uint32) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	var port uint32
	for _, c := range portStr {
		port = port*10 + uint32(c-'0')
	}
	return host, port
}

func TestServerForwardsToLocalEnclaveAndBack(t *testing.T) {
	want := []byte("sealed-secret-response")
	enclaveCfg := startFakeEnclave(t, want)

	relayLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &Server{EnclaveSocket: enclaveCfg}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, relayLn) }()

	host, port := splitHostPort(t, relayLn.Addr().String())
	peerCfg := config.SocketConfig{Host: host, Port: port}

	got, err := Forward(context.Background(), peerCfg, []byte("export-keys-request"))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Forward response = %q, want %q", got, want)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			t.Errorf("Serve returned unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return after cancellation")
	}
}

func TestForwardFailsWhenPeerUnreachable(t *testing.T) {
	unreachable := config.SocketConfig{Host: "127.0.0.1", Port: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := Forward(ctx, unreachable, []byte("req")); err == nil {
		t.Fatalf("Forward to unreachable peer succeeded, want error")
	}
}
