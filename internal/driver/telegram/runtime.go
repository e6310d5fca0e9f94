package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"subroll/pkg/subroll"

	gotdtelegram "github.com/gotd/td/telegram"
)

// BuiltRuntime bundles everything one configured Telegram instance exposes.
type BuiltRuntime struct {
	Source           subroll.EventSource
	Driver           subroll.Driver
	SinkDispatcher   subroll.SinkDispatcher
	ModeratorChecker subroll.ModeratorChecker
}

// BuildRuntimeFromConfig wires one gotd client into the inbound driver, the
// outbound dispatcher and the moderator checker. They share the peer cache
// and the self identity learned at login.
func BuildRuntimeFromConfig(name string, logger *slog.Logger, rawConfig []byte) (BuiltRuntime, error) {
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return BuiltRuntime{}, fmt.Errorf("parse telegram runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", name)

	updates, err := NewGotdUpdateChannel(cfg.updateBuffer)
	if err != nil {
		return BuiltRuntime{}, fmt.Errorf("new gotd update channel: %w", err)
	}
	storage, err := newGotdSessionStorage(cfg.sessionFile)
	if err != nil {
		return BuiltRuntime{}, fmt.Errorf("new gotd session storage: %w", err)
	}
	client := gotdtelegram.NewClient(cfg.appID, cfg.appHash, gotdtelegram.Options{
		UpdateHandler:  updates,
		SessionStorage: storage,
	})

	peers := NewPeerCache()
	self := &SelfIdentity{}
	ref := subroll.EventSink{Platform: DriverPlatform, ID: name}

	driver, err := newInboundDriver(name, logger, cfg, client, updates, peers, self)
	if err != nil {
		return BuiltRuntime{}, err
	}
	sink, err := NewOutboundDispatcher(
		client,
		peers,
		WithOutboundTimeout(cfg.publishTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(ref),
		WithReactionLimit(cfg.reactionLimit),
		WithOutboundSelfIdentity(self),
	)
	if err != nil {
		return BuiltRuntime{}, fmt.Errorf("new telegram sink dispatcher: %w", err)
	}
	checker, err := NewModeratorChecker(client, peers, self, cfg.publishTimeout)
	if err != nil {
		return BuiltRuntime{}, fmt.Errorf("new telegram moderator checker: %w", err)
	}

	return BuiltRuntime{
		Source:           subroll.EventSource{Platform: ref.Platform, ID: ref.ID},
		Driver:           driver,
		SinkDispatcher:   sink,
		ModeratorChecker: checker,
	}, nil
}

func newInboundDriver(
	name string,
	logger *slog.Logger,
	cfg parsedRuntimeConfig,
	client *gotdtelegram.Client,
	updates *GotdUpdateChannel,
	peers *PeerCache,
	self *SelfIdentity,
) (*Driver, error) {
	session := newReconnectingClient(
		gotdAuthenticatedClient{
			client: client,
			authenticate: func(ctx context.Context) error {
				return authenticateGotdClient(ctx, logger, client, self, cfg)
			},
		},
		logger,
		cfg.reconnectInitialInterval,
		cfg.reconnectMaxInterval,
	)
	mapper := NewDefaultGotdUpdateMapper(WithPeerCache(peers), WithSelfIdentity(self), WithMapperLogger(logger))
	source, err := NewGotdSessionSource(session, updates, mapper,
		WithMapErrorHandler(func(ctx context.Context, err error) {
			logger.WarnContext(ctx, "telegram update skipped", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("new gotd session source: %w", err)
	}

	driver, err := NewDriver(source, NewDefaultDecoder(),
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithErrorHandler(func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "telegram driver async error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("new telegram driver: %w", err)
	}

	return driver, nil
}
