package feeds

import (
	"context"
	"errors"
	"time"

	"subroll/pkg/subroll"
)

const (
	defaultOutboundRetryWait = time.Second
	maxOutboundRetryWait     = 10 * time.Second
)

// retryOutbound runs op a second time when the sink classifies the first
// failure as retryable, after the hinted delay. Hints above
// maxOutboundRetryWait are not waited out.
func retryOutbound(ctx context.Context, op func() error) error {
	err := op()
	outboundErr, ok := subroll.AsOutboundError(err)
	if !ok || !outboundErr.Retryable() {
		return err
	}

	wait, limited := subroll.AsOutboundRateLimit(err)
	if !limited || wait <= 0 {
		wait = defaultOutboundRetryWait
	}
	if wait > maxOutboundRetryWait {
		return err
	}
	outboundRetries.WithLabelValues(string(outboundErr.Operation)).Inc()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	case <-timer.C:
	}

	return op()
}
