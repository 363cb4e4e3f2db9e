package syncerr

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// Policy describes one retry schedule: attempt delays follow
// min(base * 2^attempt, cap) with ±20% jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// jitterPercent spreads concurrent daemons sharing one REMOTE.
const jitterPercent = 20

// Per-kind policies. Upload, Delete and Download have no automatic retry:
// their recovery is data-preserving fallback, not repetition.
var policies = map[Kind]Policy{
	KindConnection: {MaxAttempts: 6, BaseDelay: 2 * time.Second, MaxDelay: 32 * time.Second},
	KindQuery:      {MaxAttempts: 4, BaseDelay: 2 * time.Second, MaxDelay: 8 * time.Second},
}

// PolicyFor returns the retry policy for a kind, ok=false when the kind is
// not retried at this layer.
func PolicyFor(kind Kind) (Policy, bool) {
	p, ok := policies[kind]

	return p, ok
}

// Do runs fn under the policy for kind. Kinds without a policy run exactly
// once. The returned error is always a *Error wrapping the last failure.
func Do(ctx context.Context, kind Kind, op string, logger *slog.Logger, fn func(context.Context) error) error {
	pol, ok := PolicyFor(kind)
	if !ok {
		return New(kind, op, fn(ctx))
	}

	return DoWithPolicy(ctx, pol, kind, op, logger, fn)
}

// IsConnection reports whether err is a connectivity failure (endpoint
// unreachable, dial refused, connection dropped) rather than a problem with
// the statement itself.
func IsConnection(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// DoQuery runs a read under the Query schedule, escalating to the longer
// Connection schedule when the first failure is connectivity: a dropped
// endpoint needs more patience than a bad statement, which will not get
// better with repetition beyond the short schedule.
func DoQuery(ctx context.Context, op string, logger *slog.Logger, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}

	kind := KindQuery
	if IsConnection(err) {
		kind = KindConnection
	}

	if ctx.Err() != nil {
		return New(kind, op, err)
	}

	pol, _ := PolicyFor(kind)
	// The classification attempt already spent one of the schedule's tries.
	pol.MaxAttempts--

	logger.Warn("operation failed, retrying",
		slog.String("kind", kind.String()),
		slog.String("op", op),
		slog.Int("attempt", 1),
		slog.Int("max_attempts", pol.MaxAttempts+1),
		slog.String("error", err.Error()),
	)

	return DoWithPolicy(ctx, pol, kind, op, logger, fn)
}

// DoWithPolicy is Do with an explicit policy. Tests use it with millisecond
// delays; production callers go through Do.
func DoWithPolicy(ctx context.Context, pol Policy, kind Kind, op string, logger *slog.Logger, fn func(context.Context) error) error {
	backoff := retry.NewExponential(pol.BaseDelay)
	backoff = retry.WithCappedDuration(pol.MaxDelay, backoff)
	backoff = retry.WithJitterPercent(jitterPercent, backoff)
	backoff = retry.WithMaxRetries(uint64(pol.MaxAttempts-1), backoff)

	attempt := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		err := fn(ctx)
		if err == nil {
			return nil
		}

		// Context cancellation is never retryable: the cycle must finish its
		// current atomic step and exit.
		if ctx.Err() != nil {
			return err
		}

		logger.Warn("operation failed, retrying",
			slog.String("kind", kind.String()),
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", pol.MaxAttempts),
			slog.String("error", err.Error()),
		)

		return retry.RetryableError(err)
	})

	return New(kind, op, err)
}
