package telegram

import (
	"context"
	"fmt"
)

// GotdSessionClient runs fn inside a connected, authorized gotd session.
type GotdSessionClient interface {
	Run(ctx context.Context, fn func(runCtx context.Context) error) error
}

// GotdRawUpdateStream yields raw update envelopes while a session is up.
type GotdRawUpdateStream interface {
	Updates(ctx context.Context) (<-chan any, error)
}

// GotdUpdateMapper turns a raw envelope into an Update. It reports false
// for update classes the bot does not handle.
type GotdUpdateMapper interface {
	Map(ctx context.Context, raw any) (Update, bool, error)
}

// GotdSessionSource is the UpdateSource backed by a live gotd session.
type GotdSessionSource struct {
	client  GotdSessionClient
	stream  GotdRawUpdateStream
	mapper  GotdUpdateMapper
	onError func(context.Context, error)
}

// GotdSessionSourceOption configures a GotdSessionSource.
type GotdSessionSourceOption func(*GotdSessionSource)

// WithMapErrorHandler makes mapping failures non-fatal: the update is
// reported to handler and skipped. Without it a mapping failure ends
// Consume.
func WithMapErrorHandler(handler func(context.Context, error)) GotdSessionSourceOption {
	return func(source *GotdSessionSource) {
		if handler != nil {
			source.onError = handler
		}
	}
}

// NewGotdSessionSource creates a source. All three collaborators are required.
func NewGotdSessionSource(
	client GotdSessionClient,
	stream GotdRawUpdateStream,
	mapper GotdUpdateMapper,
	options ...GotdSessionSourceOption,
) (*GotdSessionSource, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("new gotd session source: nil client")
	case stream == nil:
		return nil, fmt.Errorf("new gotd session source: nil stream")
	case mapper == nil:
		return nil, fmt.Errorf("new gotd session source: nil mapper")
	}

	source := &GotdSessionSource{client: client, stream: stream, mapper: mapper}
	for _, option := range options {
		option(source)
	}

	return source, nil
}

// Consume implements UpdateSource. It returns when the session ends.
func (s *GotdSessionSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("consume gotd updates: nil handler")
	}

	if err := s.client.Run(ctx, func(runCtx context.Context) error {
		return s.pump(runCtx, handler)
	}); err != nil {
		return fmt.Errorf("consume gotd updates: %w", err)
	}

	return nil
}

// pump maps and forwards updates until the stream closes or runCtx ends.
func (s *GotdSessionSource) pump(runCtx context.Context, handler UpdateHandler) error {
	updates, err := s.stream.Updates(runCtx)
	if err != nil {
		return fmt.Errorf("get gotd updates stream: %w", err)
	}

	for {
		var (
			raw any
			ok  bool
		)
		select {
		case <-runCtx.Done():
			return nil
		case raw, ok = <-updates:
		}
		if !ok {
			return nil
		}

		update, accepted, err := s.mapSafely(runCtx, raw)
		switch {
		case err != nil:
			updatesDropped.WithLabelValues(dropReasonMapError).Inc()
			err = fmt.Errorf("map gotd update: %w", err)
			if s.onError == nil {
				return err
			}
			s.onError(runCtx, err)
		case !accepted:
			updatesDropped.WithLabelValues(dropReasonUnsupported).Inc()
		default:
			if err := handler(runCtx, update); err != nil {
				return fmt.Errorf("consume gotd update %s: %w", update.Type, err)
			}
		}
	}
}

func (s *GotdSessionSource) mapSafely(ctx context.Context, raw any) (update Update, accepted bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			update, accepted, err = Update{}, false, fmt.Errorf("mapper panic: %v", recovered)
		}
	}()

	return s.mapper.Map(ctx, raw)
}
