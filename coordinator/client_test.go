package coordinator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/quietpush/enclavecore/attestation"
	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/enclaveproto"
	"github.com/quietpush/enclavecore/enclavesvc"
	"github.com/quietpush/enclavecore/enclavestate"
	"github.com/quietpush/enclavecore/notify"
	"github.com/quietpush/enclavecore/rate"
)

func newTestEnclave(t *testing.T) (*enclavesvc.Server, *EnclaveClient) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	srv := &enclavesvc.Server{
		Cell:            &enclavestate.Cell{},
		Backend:         attestation.NewStubBackend(map[int][]byte{0: {1}}),
		PCRIndices:      []int{0},
		FreshnessWindow: 5 * time.Minute,
		Dispatcher: &notify.Dispatcher{
			Transport:  notify.NewMemTransport(),
			Limiter:    rate.AlwaysAllow,
			MaxRetries: 1,
			MinSleep:   time.Millisecond,
			MaxSleep:   time.Millisecond,
		},
		PeerRPCTimeout: time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, ln)

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	var port uint32
	for _, c := range portStr {
		port = port*10 + uint32(c-'0')
	}

	client := &EnclaveClient{
		Socket:  config.SocketConfig{Host: host, Port: port},
		Timeout: 2 * time.Second,
	}
	return srv, client
}

func TestEnclaveClientPublicKeyAfterInitialize(t *testing.T) {
	_, client := newTestEnclave(t)
	ctx := context.Background()

	initResp, err := client.Initialize(ctx, enclaveproto.InitializeRequest{Mode: enclaveproto.ModeGenesis, Track: "T1"})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	pkResp, err := client.PublicKey(ctx)
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if string(pkResp.PublicKey) != string(initResp.PublicKey) {
		t.Errorf("public key mismatch after initialize")
	}
}

func TestEnclaveClientSetLogLevel(t *testing.T) {
	_, client := newTestEnclave(t)
	ctx := context.Background()
	if err := client.SetLogLevel(ctx, "debug"); err != nil {
		t.Fatalf("SetLogLevel: %v", err)
	}
}

func TestEnclaveClientUnreachable(t *testing.T) {
	client := &EnclaveClient{
		Socket:  config.SocketConfig{Host: "127.0.0.1", Port: 1},
		Timeout: 100 * time.Millisecond,
	}
	if _, err := client.PublicKey(context.Background()); err == nil {
		t.Fatal("expected error dialing an unreachable socket")
	}
}
