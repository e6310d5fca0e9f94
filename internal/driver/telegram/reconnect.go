package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultReconnectInitialInterval = time.Second
	defaultReconnectMaxInterval     = 2 * time.Minute
	reconnectMultiplier             = 1.5
)

// errAuthentication marks session failures that retrying cannot fix.
var errAuthentication = errors.New("telegram authentication failed")

// reconnectingClient restarts a session client with exponential backoff until
// the context ends or authentication fails.
type reconnectingClient struct {
	inner           GotdSessionClient
	logger          *slog.Logger
	initialInterval time.Duration
	maxInterval     time.Duration
}

func newReconnectingClient(
	inner GotdSessionClient,
	logger *slog.Logger,
	initialInterval time.Duration,
	maxInterval time.Duration,
) reconnectingClient {
	if initialInterval <= 0 {
		initialInterval = defaultReconnectInitialInterval
	}
	if maxInterval < initialInterval {
		maxInterval = initialInterval
	}

	return reconnectingClient{
		inner:           inner,
		logger:          logger,
		initialInterval: initialInterval,
		maxInterval:     maxInterval,
	}
}

// Run keeps fn running inside a live session.
func (c reconnectingClient) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	if c.inner == nil {
		return fmt.Errorf("run reconnecting client: nil inner client")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.MaxInterval = c.maxInterval
	policy.Multiplier = reconnectMultiplier
	policy.MaxElapsedTime = 0

	operation := func() error {
		startedAt := time.Now()
		err := c.inner.Run(ctx, fn)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errAuthentication) {
			return backoff.Permanent(err)
		}
		if time.Since(startedAt) > c.maxInterval {
			policy.Reset()
		}

		return err
	}
	notify := func(err error, wait time.Duration) {
		telegramReconnects.Inc()
		if c.logger != nil {
			c.logger.WarnContext(ctx, "telegram session failed, reconnecting",
				"error", err,
				"retry_in", wait,
			)
		}
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("run reconnecting client: %w", err)
	}

	return nil
}
