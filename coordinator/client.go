// Package coordinator wires up the host-side process: it supervises the
// enclave binary, runs the genesis-election/join protocol, serves the
// control-plane HTTP endpoints, and relays export_keys requests from other
// peers' coordinators.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/enclaveproto"
	"github.com/quietpush/enclavecore/errs"
	"github.com/quietpush/enclavecore/util"
	"github.com/quietpush/enclavecore/wire"
)

// EnclaveClient dials the host-to-enclave socket fresh for each call. It
// implements genesis.EnclaveClient and web/handlers.EnclaveRequester, so the
// coordinator's startup protocol and control-plane handlers share one
// transport implementation.
type EnclaveClient struct {
	Socket  config.SocketConfig
	Timeout time.Duration

	txids util.TxGenerator
}

func (c *EnclaveClient) call(ctx context.Context, method string, req, resp interface{}) error {
	netConn, err := wire.Dial(c.Socket)
	if err != nil {
		return errs.New(errs.PeerUnreachable, "dialing enclave socket: %v", err)
	}
	defer netConn.Close()
	if dl, ok := ctx.Deadline(); ok {
		netConn.SetDeadline(dl)
	} else if c.Timeout > 0 {
		netConn.SetDeadline(time.Now().Add(c.Timeout))
	}
	conn := wire.NewConn(netConn)

	reqID := c.txids.NextID()
	frame, err := enclaveproto.EncodeRequest(reqID, method, req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	if err := conn.WriteFrame(&frame); err != nil {
		return errs.New(errs.PeerUnreachable, "writing %s request: %v", method, err)
	}
	var respFrame enclaveproto.Frame
	if err := conn.ReadFrame(&respFrame); err != nil {
		return errs.New(errs.PeerUnreachable, "reading %s response: %v", method, err)
	}
	if respFrame.RequestID != reqID {
		return fmt.Errorf("enclave response request id %d does not match request id %d", respFrame.RequestID, reqID)
	}
	if rpcErr := respFrame.Err(); rpcErr != nil {
		return rpcErr
	}
	if resp == nil {
		return nil
	}
	return enclaveproto.Decode(respFrame, resp)
}

// Initialize satisfies genesis.EnclaveClient.
func (c *EnclaveClient) Initialize(ctx context.Context, req enclaveproto.InitializeRequest) (enclaveproto.InitializeResponse, error) {
	var resp enclaveproto.InitializeResponse
	err := c.call(ctx, enclaveproto.MethodInitialize, req, &resp)
	return resp, err
}

// PublicKey satisfies web/handlers.EnclaveRequester and backs liveness polling.
func (c *EnclaveClient) PublicKey(ctx context.Context) (enclaveproto.PublicKeyResponse, error) {
	var resp enclaveproto.PublicKeyResponse
	err := c.call(ctx, enclaveproto.MethodPublicKey, enclaveproto.PublicKeyRequest{}, &resp)
	return resp, err
}

// SetLogLevel satisfies web/handlers.EnclaveRequester.
func (c *EnclaveClient) SetLogLevel(ctx context.Context, level string) error {
	return c.call(ctx, enclaveproto.MethodSetLogLevel, enclaveproto.SetLogLevelRequest{Level: level}, nil)
}

// SendNotification forwards a notification job to the enclave.
func (c *EnclaveClient) SendNotification(ctx context.Context, req enclaveproto.SendNotificationRequest) (enclaveproto.SendNotificationResponse, error) {
	var resp enclaveproto.SendNotificationResponse
	err := c.call(ctx, enclaveproto.MethodSendNotification, req, &resp)
	return resp, err
}
