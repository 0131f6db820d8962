// Package retry provides the bounded probe helper used by provisioning code
// to wait for eventually consistent identity-provider objects.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned when a probe never reported readiness within the
// configured attempt limit. Callers treat it as a hard step failure.
var ErrExhausted = errors.New("retry attempts exhausted, resource not yet available")

// ErrNotReady is the sentinel a probe returns to request another attempt.
var ErrNotReady = errors.New("not ready")

// Policy bounds a probe loop: at most MaxAttempts probes, Interval apart.
type Policy struct {
	MaxAttempts uint64
	Interval    time.Duration
}

// DefaultPolicy matches the short fixed-delay polling the provisioning saga
// expects: quick enough for interactive admin calls, bounded so a stuck
// identity backend fails the saga instead of hanging it.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 10, Interval: 500 * time.Millisecond}
}

// Until runs probe until it returns nil, a permanent error, or the policy is
// exhausted. A probe returning ErrNotReady schedules another attempt; any
// other error aborts immediately and is returned as-is.
func Until(ctx context.Context, p Policy, probe func(ctx context.Context) error) error {
	if p.MaxAttempts == 0 {
		p = DefaultPolicy()
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxAttempts-1),
		ctx,
	)

	op := func() error {
		err := probe(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotReady) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, ErrNotReady) {
			return fmt.Errorf("%w after %d attempts", ErrExhausted, p.MaxAttempts)
		}
		return err
	}
	return nil
}
