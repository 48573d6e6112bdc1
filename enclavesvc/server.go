// Package enclavesvc implements the in-TEE request/response server that
// owns the track secret key and services initialize, public_key,
// export_keys, and send_notification over the host-to-enclave socket.
package enclavesvc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	metrics "github.com/hashicorp/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/quietpush/enclavecore/attestation"
	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/cryptocore"
	"github.com/quietpush/enclavecore/enclaveproto"
	"github.com/quietpush/enclavecore/enclavestate"
	"github.com/quietpush/enclavecore/errs"
	"github.com/quietpush/enclavecore/logger"
	"github.com/quietpush/enclavecore/notify"
	"github.com/quietpush/enclavecore/wire"
)

var (
	connectCounter = []string{"enclavesvc", "connect"}
	requestCounter = []string{"enclavesvc", "request"}
	errorCounter   = []string{"enclavesvc", "error"}
)

// Server is the enclave-side RPC handler. It owns the state cell and the
// attestation backend, and dispatches the four host-to-enclave methods
// plus the ambient set_log_level control call.
type Server struct {
	Cell             *enclavestate.Cell
	Backend          attestation.Backend
	PCRIndices       []int
	FreshnessWindow  time.Duration
	RequireHardware  bool
	Dispatcher       *notify.Dispatcher
	PeerRPCTimeout   time.Duration
}

// Serve accepts connections on ln, handling each on its own goroutine,
// until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			metrics.IncrCounter(connectCounter, 1)
			eg.Go(func() error {
				s.handleConn(egCtx, conn)
				return nil
			})
		}
	})
	<-egCtx.Done()
	ln.Close()
	return eg.Wait()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	c := wire.NewConn(conn)
	for {
		var frame enclaveproto.Frame
		if err := c.ReadFrame(&frame); err != nil {
			return
		}
		metrics.IncrCounter(requestCounter, 1)
		resp := s.dispatch(ctx, frame)
		if resp.ErrKind != "" {
			metrics.IncrCounter(errorCounter, 1)
		}
		if err := c.WriteFrame(&resp); err != nil {
			logger.Warnw("enclavesvc: failed to write response frame", "method", frame.Method, "err", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, frame enclaveproto.Frame) enclaveproto.Frame {
	switch frame.Method {
	case enclaveproto.MethodInitialize:
		var req enclaveproto.InitializeRequest
		if err := enclaveproto.Decode(frame, &req); err != nil {
			return enclaveproto.EncodeError(frame.RequestID, frame.Method, fmt.Errorf("decoding initialize request: %w", err))
		}
		resp, err := s.initialize(ctx, req)
		return respond(frame.RequestID, frame.Method, resp, err)

	case enclaveproto.MethodPublicKey:
		resp, err := s.publicKey()
		return respond(frame.RequestID, frame.Method, resp, err)

	case enclaveproto.MethodExportKeys:
		var req enclaveproto.ExportKeysRequest
		if err := enclaveproto.Decode(frame, &req); err != nil {
			return enclaveproto.EncodeError(frame.RequestID, frame.Method, fmt.Errorf("decoding export_keys request: %w", err))
		}
		resp, err := s.exportKeys(req)
		return respond(frame.RequestID, frame.Method, resp, err)

	case enclaveproto.MethodSendNotification:
		var req enclaveproto.SendNotificationRequest
		if err := enclaveproto.Decode(frame, &req); err != nil {
			return enclaveproto.EncodeError(frame.RequestID, frame.Method, fmt.Errorf("decoding send_notification request: %w", err))
		}
		resp, err := s.sendNotification(ctx, req)
		return respond(frame.RequestID, frame.Method, resp, err)

	case enclaveproto.MethodSetLogLevel:
		var req enclaveproto.SetLogLevelRequest
		if err := enclaveproto.Decode(frame, &req); err != nil {
			return enclaveproto.EncodeError(frame.RequestID, frame.Method, fmt.Errorf("decoding set_log_level request: %w", err))
		}
		err := logger.SetLevel(req.Level)
		return respond(frame.RequestID, frame.Method, struct{}{}, err)

	default:
		return enclaveproto.EncodeError(frame.RequestID, frame.Method, errs.New(errs.Unknown, "unknown method %q", frame.Method))
	}
}

func respond(requestID uint64, method string, resp interface{}, err error) enclaveproto.Frame {
	if err != nil {
		return enclaveproto.EncodeError(requestID, method, err)
	}
	out, encErr := enclaveproto.EncodeResponse(requestID, method, resp)
	if encErr != nil {
		return enclaveproto.EncodeError(requestID, method, encErr)
	}
	return out
}

// initialize performs the Genesis or Join transition and, on success,
// attests the resulting public key.
func (s *Server) initialize(ctx context.Context, req enclaveproto.InitializeRequest) (enclaveproto.InitializeResponse, error) {
	err := s.Cell.Initialize(func() (cryptocore.SecretKey, cryptocore.PublicKey, string, error) {
		switch req.Mode {
		case enclaveproto.ModeGenesis:
			secret, public, err := cryptocore.GenerateKeypair(s.Backend.Available(), s.RequireHardware)
			return secret, public, req.Track, err
		case enclaveproto.ModeJoin:
			if req.Peer == nil {
				return cryptocore.SecretKey{}, cryptocore.PublicKey{}, "", errs.New(errs.Unknown, "join mode requires a peer address")
			}
			secret, public, err := s.join(ctx, *req.Peer)
			return secret, public, req.Track, err
		default:
			return cryptocore.SecretKey{}, cryptocore.PublicKey{}, "", errs.New(errs.Unknown, "unknown initialize mode %q", req.Mode)
		}
	})
	if err != nil {
		return enclaveproto.InitializeResponse{}, err
	}

	snap, _ := s.Cell.Snapshot()
	doc, err := attestation.Attest(s.Backend, snap.Public[:], nil, s.RequireHardware)
	if err != nil {
		return enclaveproto.InitializeResponse{}, err
	}
	encoded, err := attestation.Encode(doc)
	if err != nil {
		return enclaveproto.InitializeResponse{}, err
	}
	return enclaveproto.InitializeResponse{PublicKey: snap.Public[:], Attestation: encoded}, nil
}

// join dials the peer named by addr, exchanges attestations, and recovers
// the track secret from the sealed envelope the peer returns.
func (s *Server) join(ctx context.Context, addr enclaveproto.PeerAddress) (cryptocore.SecretKey, cryptocore.PublicKey, error) {
	ephemeralSecret, ephemeralPublic, err := cryptocore.GenerateKeypair(s.Backend.Available(), s.RequireHardware)
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}
	doc, err := attestation.Attest(s.Backend, ephemeralPublic[:], nil, s.RequireHardware)
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}
	encodedDoc, err := attestation.Encode(doc)
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}

	netConn, err := wire.Dial(config.SocketConfig{Host: addr.Host, Port: addr.Port})
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, errs.New(errs.PeerUnreachable, "dialing peer %s:%d: %v", addr.Host, addr.Port, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		netConn.SetDeadline(dl)
	} else if s.PeerRPCTimeout > 0 {
		netConn.SetDeadline(time.Now().Add(s.PeerRPCTimeout))
	}
	conn := wire.NewConn(netConn)
	defer conn.Close()

	reqFrame, err := enclaveproto.EncodeRequest(0, enclaveproto.MethodExportKeys, enclaveproto.ExportKeysRequest{Attestation: encodedDoc})
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}
	if err := conn.WriteFrame(&reqFrame); err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, errs.New(errs.PeerUnreachable, "sending export_keys request: %v", err)
	}
	var respFrame enclaveproto.Frame
	if err := conn.ReadFrame(&respFrame); err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, errs.New(errs.PeerUnreachable, "reading export_keys response: %v", err)
	}
	if rpcErr := respFrame.Err(); rpcErr != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, rpcErr
	}
	var resp enclaveproto.ExportKeysResponse
	if err := enclaveproto.Decode(respFrame, &resp); err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, fmt.Errorf("decoding export_keys response: %w", err)
	}

	peerDoc, err := attestation.Decode(resp.Attestation)
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, errs.New(errs.PeerAttestationInvalid, "malformed peer response attestation: %v", err)
	}
	myMeasurements, err := s.Backend.Measurements()
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}
	if _, err := attestation.Verify(s.Backend, peerDoc, myMeasurements, s.PCRIndices, s.FreshnessWindow, time.Now()); err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}

	var peerEphemeralPublic cryptocore.PublicKey
	if len(resp.EphemeralPublic) != cryptocore.KeySize {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, errs.New(errs.PeerAttestationInvalid, "peer ephemeral public key has the wrong length")
	}
	copy(peerEphemeralPublic[:], resp.EphemeralPublic)

	shared, err := cryptocore.Agree(ephemeralSecret, peerEphemeralPublic)
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}
	trackSecret, err := cryptocore.OpenTrackSecret(shared, resp.SealedSecret)
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}
	trackPublic, err := cryptocore.PublicFromSecret(trackSecret)
	if err != nil {
		return cryptocore.SecretKey{}, cryptocore.PublicKey{}, err
	}
	return trackSecret, trackPublic, nil
}

func (s *Server) publicKey() (enclaveproto.PublicKeyResponse, error) {
	snap, ok := s.Cell.Snapshot()
	if !ok {
		return enclaveproto.PublicKeyResponse{}, errs.New(errs.Unknown, "enclave not initialized")
	}
	doc, err := attestation.Attest(s.Backend, snap.Public[:], nil, s.RequireHardware)
	if err != nil {
		return enclaveproto.PublicKeyResponse{}, err
	}
	encoded, err := attestation.Encode(doc)
	if err != nil {
		return enclaveproto.PublicKeyResponse{}, err
	}
	return enclaveproto.PublicKeyResponse{PublicKey: snap.Public[:], Attestation: encoded}, nil
}

// exportKeys verifies the joining peer's attestation and, on success,
// seals the track secret to a freshly agreed key. On any validation
// failure it returns an error without touching the secret, per the
// "error-only reply on failure" requirement.
func (s *Server) exportKeys(req enclaveproto.ExportKeysRequest) (enclaveproto.ExportKeysResponse, error) {
	snap, ok := s.Cell.Snapshot()
	if !ok {
		return enclaveproto.ExportKeysResponse{}, errs.New(errs.Unknown, "enclave not initialized")
	}

	peerDoc, err := attestation.Decode(req.Attestation)
	if err != nil {
		return enclaveproto.ExportKeysResponse{}, errs.New(errs.PeerAttestationInvalid, "malformed attestation: %v", err)
	}
	myMeasurements, err := s.Backend.Measurements()
	if err != nil {
		return enclaveproto.ExportKeysResponse{}, err
	}
	verified, err := attestation.Verify(s.Backend, peerDoc, myMeasurements, s.PCRIndices, s.FreshnessWindow, time.Now())
	if err != nil {
		return enclaveproto.ExportKeysResponse{}, err
	}
	if len(verified.PublicKey) != cryptocore.KeySize {
		return enclaveproto.ExportKeysResponse{}, errs.New(errs.PeerAttestationInvalid, "attested public key has the wrong length")
	}
	var joinerPublic cryptocore.PublicKey
	copy(joinerPublic[:], verified.PublicKey)

	ephemeralSecret, ephemeralPublic, err := cryptocore.GenerateKeypair(s.Backend.Available(), s.RequireHardware)
	if err != nil {
		return enclaveproto.ExportKeysResponse{}, err
	}
	shared, err := cryptocore.Agree(ephemeralSecret, joinerPublic)
	if err != nil {
		return enclaveproto.ExportKeysResponse{}, err
	}
	sealed, err := cryptocore.SealTrackSecret(shared, snap.Secret)
	if err != nil {
		return enclaveproto.ExportKeysResponse{}, err
	}

	doc, err := attestation.Attest(s.Backend, ephemeralPublic[:], nil, s.RequireHardware)
	if err != nil {
		return enclaveproto.ExportKeysResponse{}, err
	}
	encodedDoc, err := attestation.Encode(doc)
	if err != nil {
		return enclaveproto.ExportKeysResponse{}, err
	}

	return enclaveproto.ExportKeysResponse{
		SealedSecret:    sealed,
		EphemeralPublic: ephemeralPublic[:],
		Attestation:     encodedDoc,
	}, nil
}

// sendNotification decrypts each recipient's push identifier and dispatches
// it concurrently, without holding the state cell's lock during dispatch. A
// PushAuthFailure for one recipient halts dispatch of the remaining ones,
// but is not surfaced as an RPC-level error: the response always reports
// the delivered/failed counts accumulated so far.
func (s *Server) sendNotification(ctx context.Context, req enclaveproto.SendNotificationRequest) (enclaveproto.SendNotificationResponse, error) {
	snap, ok := s.Cell.Snapshot()
	if !ok {
		return enclaveproto.SendNotificationResponse{}, errs.New(errs.Unknown, "enclave not initialized")
	}
	secret := snap.Secret

	var mu sync.Mutex
	var delivered, failed uint32
	eg, egCtx := errgroup.WithContext(ctx)
	for _, encoded := range req.Recipients {
		encoded := encoded
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				return nil
			default:
			}
			pushID, err := cryptocore.HybridDecrypt(secret, encoded)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			deliverErr := s.Dispatcher.Deliver(egCtx, notify.Request{Topic: req.Topic, PushID: pushID, Payload: req.Payload})
			mu.Lock()
			if deliverErr != nil {
				failed++
			} else {
				delivered++
			}
			mu.Unlock()
			if errs.Is(deliverErr, errs.PushAuthFailure) {
				return deliverErr
			}
			return nil
		})
	}
	eg.Wait()
	return enclaveproto.SendNotificationResponse{Delivered: delivered, Failed: failed}, nil
}
