// Package notify delivers decrypted push identifiers to an external push
// provider, classifying each attempt's outcome per spec and retrying
// transient failures with backoff.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/quietpush/enclavecore/errs"
	"github.com/quietpush/enclavecore/logger"
	"github.com/quietpush/enclavecore/rate"
	"github.com/quietpush/enclavecore/util"
)

// Request is a single recipient's decrypted push identifier and the
// notification payload to deliver to it. PushID is never logged and never
// retained past a single Deliver call.
type Request struct {
	Topic   string
	PushID  []byte
	Payload []byte
}

// PushTransport sends one notification request to the push provider and
// returns the provider's raw outcome. Implementations classify the
// response into delivered/permanent/transient/auth failure; PushTransport
// itself just performs the I/O.
type PushTransport interface {
	Send(ctx context.Context, req Request) error
}

// Dispatcher retries transient PushTransport failures with backoff and
// enforces a per-topic rate limit once per Deliver call, before the first
// attempt; retries are not rate-limited.
type Dispatcher struct {
	Transport  PushTransport
	Limiter    rate.Limiter
	MaxRetries int
	MinSleep   time.Duration
	MaxSleep   time.Duration
}

// Deliver sends a single request, retrying errs.PushTransient outcomes up
// to MaxRetries times with exponential backoff. errs.PushPermanent and
// errs.PushAuthFailure are not retried; the latter should halt the whole
// batch at the call site, per spec.
func (d *Dispatcher) Deliver(ctx context.Context, req Request) error {
	if err := d.Limiter.Limit(ctx, req.Topic); err != nil {
		var exceeded rate.ErrLimitExceeded
		if errors.As(err, &exceeded) {
			return errs.New(errs.PushTransient, "rate limited, retry after %v", exceeded.RetryAfter)
		}
		return err
	}

	sleep := time.Duration(0)
	var lastErr error
	for attempt := 0; attempt <= d.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
			sleep = util.Clamp(sleep*2, d.MinSleep, d.MaxSleep)
		}
		err := d.Transport.Send(ctx, req)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.Is(err, errs.PushTransient) {
			return err
		}
	}
	logger.Warnw("push delivery exhausted retries", "topic", req.Topic, "attempts", d.MaxRetries+1)
	return lastErr
}
