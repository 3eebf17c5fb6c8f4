package source

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// IsTransient reports whether err is worth another attempt: network timeouts,
// throttling and server-side failures. Cancellation and anything unrecognised
// are terminal.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, token := range transientMessageTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"too many requests",
	"rate limit",
	"unexpected eof",
}

// Retrying retries transient Source failures with linear backoff
// (backoff, 2*backoff, ...). Terminal errors return immediately.
type Retrying struct {
	inner    Source
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

func WithRetry(inner Source, attempts int, backoff time.Duration, logger *zap.Logger) *Retrying {
	if attempts <= 0 {
		attempts = 1
	}
	return &Retrying{inner: inner, attempts: attempts, backoff: backoff, logger: logger}
}

func (r *Retrying) Head(ctx context.Context) (uint64, error) {
	var head uint64
	err := r.do(ctx, "head", func(ctx context.Context) error {
		var err error
		head, err = r.inner.Head(ctx)
		return err
	})
	return head, err
}

func (r *Retrying) Fetch(ctx context.Context, blockRange model.BlockRange, filter Filter) ([]model.RawEvent, error) {
	var events []model.RawEvent
	err := r.do(ctx, "fetch "+blockRange.String(), func(ctx context.Context) error {
		var err error
		events, err = r.inner.Fetch(ctx, blockRange, filter)
		return err
	})
	return events, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == r.attempts || ctx.Err() != nil {
			return lastErr
		}

		wait := time.Duration(attempt) * r.backoff
		r.logger.Warn("Retrying source call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
