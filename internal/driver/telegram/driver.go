package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subroll/pkg/subroll"
)

const defaultPublishTimeout = 2 * time.Second

// Driver feeds decoded Telegram updates into the kernel's event bus.
type Driver struct {
	name           string
	publishTimeout time.Duration
	onAsyncError   func(context.Context, error)
	source         UpdateSource
	decoder        Decoder
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithName sets the driver instance name. Empty names are ignored.
func WithName(name string) DriverOption {
	return func(d *Driver) {
		if name != "" {
			d.name = name
		}
	}
}

// WithPublishTimeout bounds how long one event may wait on the bus.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		if timeout > 0 {
			d.publishTimeout = timeout
		}
	}
}

// WithErrorHandler receives per-update decode and publish failures.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(d *Driver) {
		if handler != nil {
			d.onAsyncError = handler
		}
	}
}

// NewDriver wires a source and decoder into a Driver.
func NewDriver(source UpdateSource, decoder Decoder, options ...DriverOption) (*Driver, error) {
	switch {
	case source == nil:
		return nil, fmt.Errorf("new telegram driver: nil source")
	case decoder == nil:
		return nil, fmt.Errorf("new telegram driver: nil decoder")
	}

	d := &Driver{
		name:           DriverType,
		publishTimeout: defaultPublishTimeout,
		onAsyncError:   func(context.Context, error) {},
		source:         source,
		decoder:        decoder,
	}
	for _, option := range options {
		option(d)
	}

	return d, nil
}

// Name returns the configured instance name.
func (d *Driver) Name() string {
	return d.name
}

// Start blocks consuming updates until ctx ends or the source fails.
func (d *Driver) Start(ctx context.Context, sink subroll.EventDispatcher) error {
	if sink == nil {
		return fmt.Errorf("start telegram driver: nil sink")
	}

	err := d.source.Consume(ctx, func(updateCtx context.Context, update Update) error {
		d.forward(updateCtx, update, sink)
		return nil
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return fmt.Errorf("start telegram driver: consume updates: %w", err)
	}
}

// forward decodes and publishes one update. Failures are reported, never
// returned, so a single bad update does not end the session.
func (d *Driver) forward(ctx context.Context, update Update, sink subroll.EventDispatcher) {
	updatesReceived.WithLabelValues(string(update.Type)).Inc()

	event, err := d.decode(ctx, update)
	if err != nil {
		d.onAsyncError(ctx, fmt.Errorf("handle update %s: %w", update.Type, err))
		return
	}
	if event.Source.Platform == "" {
		event.Source.Platform = DriverPlatform
	}
	if event.Source.ID == "" {
		event.Source.ID = d.name
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	if err := sink.Publish(publishCtx, event); err != nil {
		d.onAsyncError(ctx, fmt.Errorf("handle update %s publish: %w", update.Type, err))
	}
}

func (d *Driver) decode(ctx context.Context, update Update) (event *subroll.Event, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			event, err = nil, fmt.Errorf("decode panic: %v", recovered)
		}
	}()

	event, err = d.decoder.Decode(ctx, update)
	if err == nil && event == nil {
		err = fmt.Errorf("decoder returned no event")
	}

	return event, err
}

// Shutdown is a no-op; Start owns the session lifetime.
func (d *Driver) Shutdown(context.Context) error {
	return nil
}
