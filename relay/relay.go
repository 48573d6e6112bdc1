// Package relay brokers the single-round-trip export_keys RPC between a
// joining enclave and an existing peer's coordinator: the joining enclave
// dials the peer's relay Server directly, and the Server forwards the frame
// to its own local enclave. The frame is opaque bytes: the coordinator
// running this package never decodes the attestation or the sealed secret
// it carries.
package relay

import (
	"context"
	"fmt"
	"net"

	metrics "github.com/hashicorp/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/logger"
	"github.com/quietpush/enclavecore/wire"
)

var (
	acceptCounter  = []string{"relay", "accept"}
	forwardCounter = []string{"relay", "forward"}
	errorCounter   = []string{"relay", "error"}
)

// Server listens for incoming export_keys relay connections from joining
// enclaves and forwards each one, verbatim, to the local
// enclave's RPC socket.
type Server struct {
	// EnclaveSocket addresses this host's own enclave RPC socket, which
	// actually owns and validates the attestation/secret material.
	EnclaveSocket config.SocketConfig
}

// Serve accepts connections on ln until ctx is cancelled, handling each on
// its own goroutine via an errgroup so a panic-free handler failure on one
// connection never brings down the listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			metrics.IncrCounter(acceptCounter, 1)
			eg.Go(func() error {
				s.handleConn(conn)
				return nil
			})
		}
	})
	<-egCtx.Done()
	ln.Close()
	return eg.Wait()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	peerConn := wire.NewConn(conn)

	req, err := peerConn.ReadRawFrame()
	if err != nil {
		logger.Warnw("relay: failed to read request frame from joining peer", "remote", conn.RemoteAddr(), "err", err)
		metrics.IncrCounter(errorCounter, 1)
		return
	}

	resp, err := s.forwardToLocalEnclave(req)
	if err != nil {
		logger.Warnw("relay: forwarding export_keys to local enclave failed", "err", err)
		metrics.IncrCounter(errorCounter, 1)
		return
	}

	if err := peerConn.WriteRawFrame(resp); err != nil {
		logger.Warnw("relay: failed to write response frame to joining peer", "remote", conn.RemoteAddr(), "err", err)
		metrics.IncrCounter(errorCounter, 1)
		return
	}
	metrics.IncrCounter(forwardCounter, 1)
}

func (s *Server) forwardToLocalEnclave(rawRequest []byte) ([]byte, error) {
	enclaveNetConn, err := wire.Dial(s.EnclaveSocket)
	if err != nil {
		return nil, fmt.Errorf("dialing local enclave: %w", err)
	}
	enclaveConn := wire.NewConn(enclaveNetConn)
	defer enclaveConn.Close()

	if err := enclaveConn.WriteRawFrame(rawRequest); err != nil {
		return nil, fmt.Errorf("forwarding request to local enclave: %w", err)
	}
	resp, err := enclaveConn.ReadRawFrame()
	if err != nil {
		return nil, fmt.Errorf("reading local enclave response: %w", err)
	}
	return resp, nil
}

// Forward dials a remote peer's relay address, sends rawRequest (the
// joining enclave's already-framed export_keys request), and returns the
// raw response frame; it never interprets the bytes it moves. The
// coordinator does not call it: a joining enclave dials the peer's relay
// address itself.
func Forward(ctx context.Context, peerAddr config.SocketConfig, rawRequest []byte) ([]byte, error) {
	netConn, err := wire.Dial(peerAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing peer relay: %w", err)
	}
	conn := wire.NewConn(netConn)
	defer conn.Close()

	type result struct {
		resp []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if err := conn.WriteRawFrame(rawRequest); err != nil {
			done <- result{err: fmt.Errorf("writing request to peer: %w", err)}
			return
		}
		resp, err := conn.ReadRawFrame()
		if err != nil {
			done <- result{err: fmt.Errorf("reading response from peer: %w", err)}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	case r := <-done:
		return r.resp, r.err
	}
}
