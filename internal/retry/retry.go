// Package retry implements exponential retry policy.
package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/logging"
)

var log = logging.Module("retry")

// DefaultInitialSleep is the delay before the first retry, doubled after
// every failed attempt.
const DefaultInitialSleep = 1 * time.Second

// AttemptFunc performs a single attempt.
type AttemptFunc func() error

// IsRetriableFunc is a function that determines whether an error is retriable.
type IsRetriableFunc func(err error) bool

// Always treats every error as retriable.
func Always(err error) bool { return err != nil }

// WithExponentialBackoff runs the provided attempt until it succeeds, retrying
// errors deemed retriable by the provided function up to maxAttempts times.
// The delay between retries doubles after every failure. Returns early when
// the context is canceled.
func WithExponentialBackoff(ctx context.Context, desc string, maxAttempts int, attempt AttemptFunc, isRetriable IsRetriableFunc) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	sleepAmount := DefaultInitialSleep

	var err error

	for i := 0; i < maxAttempts; i++ {
		err = attempt()
		if err == nil {
			return nil
		}

		if !isRetriable(err) {
			return err
		}

		if i == maxAttempts-1 {
			break
		}

		log(ctx).Debugf("got error %v when %v (#%v), sleeping for %v before retrying", err, desc, i, sleepAmount)

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "canceled while %v", desc)
		case <-time.After(sleepAmount):
		}

		sleepAmount *= 2
	}

	return errors.Wrapf(err, "unable to complete %v despite %v attempts", desc, maxAttempts)
}
