package retry

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	n := 0

	err := WithExponentialBackoff(context.Background(), "test op", 5, func() error {
		n++
		if n < 3 {
			return errTransient
		}
		return nil
	}, Always)

	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestRetryStopsOnNonRetriable(t *testing.T) {
	t.Parallel()

	fatal := errors.New("fatal")
	n := 0

	err := WithExponentialBackoff(context.Background(), "test op", 5, func() error {
		n++
		return fatal
	}, func(err error) bool { return !errors.Is(err, fatal) })

	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, n)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()

	n := 0

	err := WithExponentialBackoff(context.Background(), "test op", 1, func() error {
		n++
		return errTransient
	}, Always)

	require.Error(t, err)
	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 1, n)
}

func TestRetryHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithExponentialBackoff(ctx, "test op", 3, func() error {
		return errTransient
	}, Always)

	require.ErrorIs(t, err, context.Canceled)
}
