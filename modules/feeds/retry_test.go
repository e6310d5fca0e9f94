package feeds

import (
	"context"
	"errors"
	"testing"
	"time"

	"subroll/pkg/subroll"
)

func TestRetryOutbound(t *testing.T) {
	t.Parallel()

	rateLimited := &subroll.OutboundError{
		Operation:  subroll.OutboundOperationSendMessage,
		Kind:       subroll.OutboundErrorKindRateLimited,
		RetryAfter: time.Millisecond,
	}
	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   bool
	}{
		{name: "success", wantCalls: 1},
		{name: "plain error not retried", failures: []error{errors.New("boom")}, wantCalls: 1, wantErr: true},
		{
			name:      "permanent not retried",
			failures:  []error{&subroll.OutboundError{Kind: subroll.OutboundErrorKindPermanent}},
			wantCalls: 1,
			wantErr:   true,
		},
		{name: "rate limit retried once", failures: []error{rateLimited}, wantCalls: 2},
		{name: "second failure returned", failures: []error{rateLimited, rateLimited}, wantCalls: 2, wantErr: true},
		{
			name: "long wait not honoured",
			failures: []error{&subroll.OutboundError{
				Kind:       subroll.OutboundErrorKindRateLimited,
				RetryAfter: time.Hour,
			}},
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := retryOutbound(context.Background(), func() error {
				calls++
				if calls <= len(testCase.failures) {
					return testCase.failures[calls-1]
				}
				return nil
			})
			if calls != testCase.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, testCase.wantCalls)
			}
			if (err != nil) != testCase.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, testCase.wantErr)
			}
		})
	}
}

func TestRetryOutboundStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryOutbound(ctx, func() error {
		calls++
		return &subroll.OutboundError{Kind: subroll.OutboundErrorKindTemporary}
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
