package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestReconnectingClientRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		results   []error
		wantCalls int32
		wantErr   bool
	}{
		{
			name:      "clean exit stops",
			results:   []error{nil},
			wantCalls: 1,
		},
		{
			name:      "transient failures retried",
			results:   []error{errors.New("connection reset"), errors.New("connection reset"), nil},
			wantCalls: 3,
		},
		{
			name:      "authentication failure is permanent",
			results:   []error{fmt.Errorf("%w: bad token", errAuthentication)},
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			inner := stubGotdSessionClient{run: func(context.Context, func(context.Context) error) error {
				index := calls.Add(1) - 1
				if int(index) >= len(testCase.results) {
					return nil
				}
				return testCase.results[index]
			}}

			client := newReconnectingClient(inner, nil, time.Millisecond, 5*time.Millisecond)
			err := client.Run(context.Background(), func(context.Context) error { return nil })
			if testCase.wantErr {
				if !errors.Is(err, errAuthentication) {
					t.Fatalf("error = %v, want %v", err, errAuthentication)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := calls.Load(); got != testCase.wantCalls {
				t.Fatalf("calls = %d, want %d", got, testCase.wantCalls)
			}
		})
	}
}

func TestReconnectingClientStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	inner := stubGotdSessionClient{run: func(context.Context, func(context.Context) error) error {
		if calls.Add(1) == 2 {
			cancel()
		}
		return errors.New("connection reset")
	}}

	client := newReconnectingClient(inner, nil, time.Millisecond, time.Millisecond)
	if err := client.Run(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("run error = %v, want nil after cancel", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}
