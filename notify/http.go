package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quietpush/enclavecore/config"
	"github.com/quietpush/enclavecore/errs"
)

// HTTPTransport sends notification requests to a push provider's HTTPS
// endpoint. Requests go out through whatever dialer the supplied
// *http.Client carries; cmd/enclave supplies a client with the default
// system dialer, so no host-proxied tunnel is involved.
type HTTPTransport struct {
	Endpoint   string
	AuthHeader string
	Client     *http.Client
}

var _ PushTransport = (*HTTPTransport)(nil)

// NewHTTPTransport builds an HTTPTransport from push-provider config. The
// caller supplies client so the enclave-side binary can wire its Transport
// through the tunneled socket dialer.
func NewHTTPTransport(cfg config.PushConfig, authHeader string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = cfg.Timeout
	}
	return &HTTPTransport{Endpoint: cfg.Endpoint, AuthHeader: authHeader, Client: client}
}

type providerBody struct {
	Topic   string `json:"topic"`
	PushID  string `json:"push_id"`
	Payload string `json:"payload"`
}

// Send builds and sends a minimal HTTPS request to the provider endpoint
// and classifies the response per spec: 2xx delivered, 401/403
// errs.PushAuthFailure, other 4xx errs.PushPermanent, 5xx or a transport
// timeout errs.PushTransient.
func (h *HTTPTransport) Send(ctx context.Context, req Request) error {
	body, err := json.Marshal(providerBody{
		Topic:   req.Topic,
		PushID:  string(req.PushID),
		Payload: string(req.Payload),
	})
	if err != nil {
		return fmt.Errorf("encoding push provider body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building push provider request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	if h.AuthHeader != "" {
		httpReq.Header.Set("authorization", h.AuthHeader)
	}

	resp, err := h.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.New(errs.PushTransient, "push provider request failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.New(errs.PushAuthFailure, "push provider rejected credentials: status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return errs.New(errs.PushTransient, "push provider server error: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return errs.New(errs.PushPermanent, "push provider rejected request: status %d", resp.StatusCode)
	default:
		return errs.New(errs.PushTransient, "unexpected push provider status %d", resp.StatusCode)
	}
}
