package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"subroll/pkg/subroll"
)

const reactionHandlerTimeout = 30 * time.Second

// Module subscribes channels to feeds and posts random cached items with
// reaction controls.
type Module struct {
	cfg    Config
	admins map[string]struct{}

	logger     *slog.Logger
	httpClient *http.Client
	clock      func() time.Time
	intN       func(n int) int

	fetcher  *Fetcher
	cache    *Cache
	registry *Registry
	selector *Selector
	gate     *Gate
	posted   *postedSet

	sink       subroll.SinkDispatcher
	moderators subroll.ModeratorChecker
	prefix     subroll.CommandPrefixStore
}

// Option mutates one feeds module construction input.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithModuleHTTPClient replaces the HTTP client used for listing requests.
func WithModuleHTTPClient(client *http.Client) Option {
	return func(module *Module) {
		if client != nil {
			module.httpClient = client
		}
	}
}

// WithClock replaces the time source of the cache and the reaction gate.
func WithClock(clock func() time.Time) Option {
	return func(module *Module) {
		if clock != nil {
			module.clock = clock
		}
	}
}

// WithRandom replaces the random source of item selection.
func WithRandom(intN func(n int) int) Option {
	return func(module *Module) {
		if intN != nil {
			module.intN = intN
		}
	}
}

// New creates one feeds module instance.
func New(cfg Config, options ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new feeds module: %w", err)
	}

	module := &Module{
		cfg:    cfg,
		admins: make(map[string]struct{}, len(cfg.Admins)),
		clock:  time.Now,
	}
	for _, admin := range cfg.Admins {
		module.admins[admin] = struct{}{}
	}
	for _, option := range options {
		option(module)
	}

	logger := module.logger
	if logger == nil {
		logger = slog.Default()
	}

	fetcherOptions := []FetcherOption{WithFetcherLogger(logger)}
	if module.httpClient != nil {
		fetcherOptions = append(fetcherOptions, WithHTTPClient(module.httpClient))
	}
	module.fetcher = NewFetcher(cfg, fetcherOptions...)
	module.cache = NewCache(module.fetcher, cfg.Depth, cfg.CacheTTL, WithCacheClock(module.clock))
	module.registry = NewRegistry(module.cache, logger)
	module.selector = NewSelector(module.registry, module.cache, WithIntN(module.intN))
	module.gate = NewGate(cfg.Cooldown, WithGateClock(module.clock))
	module.posted = newPostedSet(cfg.PostedCapacity)

	return module, nil
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "feeds"
}

// Spec declares feed command and reaction capabilities.
func (m *Module) Spec() subroll.ModuleSpec {
	return subroll.ModuleSpec{
		Handlers: []subroll.ModuleHandler{
			{
				Capability: subroll.Capability{
					Name:        "feeds-command-handler",
					Description: "manages channel feed subscriptions and posts items on demand",
					Interest: subroll.InterestSet{
						Kinds:          []subroll.EventKind{subroll.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   commandNames(),
					},
					RequiredServices: []string{
						subroll.ServiceSinkDispatcher,
						subroll.ServiceModeratorChecker,
						subroll.ServiceCommandPrefix,
					},
				},
				Subscription: subroll.SubscriptionSpec{
					Name:           "feeds-commands",
					HandlerTimeout: m.cfg.CommandTimeout,
				},
				Handler: m.handleCommand,
			},
			{
				Capability: subroll.Capability{
					Name:        "feeds-reaction-handler",
					Description: "routes control reactions on posted items",
					Interest: subroll.InterestSet{
						Kinds:           []subroll.EventKind{subroll.EventKindReactionAdded},
						RequireReaction: true,
					},
					RequiredServices: []string{subroll.ServiceSinkDispatcher},
				},
				Subscription: subroll.SubscriptionSpec{
					Name:           "feeds-reactions",
					HandlerTimeout: reactionHandlerTimeout,
				},
				Handler: m.handleReaction,
			},
		},
		Commands: commandSpecs(),
	}
}

// OnRegister resolves module dependencies.
func (m *Module) OnRegister(_ context.Context, runtime subroll.ModuleRuntime) error {
	if m.logger == nil {
		m.setLogger(subroll.ResolveLogger(runtime.Services()))
	}

	sink, err := subroll.ResolveAs[subroll.SinkDispatcher](runtime.Services(), subroll.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("feeds resolve sink dispatcher: %w", err)
	}
	moderators, err := subroll.ResolveAs[subroll.ModeratorChecker](runtime.Services(), subroll.ServiceModeratorChecker)
	if err != nil {
		return fmt.Errorf("feeds resolve moderator checker: %w", err)
	}
	prefix, err := subroll.ResolveAs[subroll.CommandPrefixStore](runtime.Services(), subroll.ServiceCommandPrefix)
	if err != nil {
		return fmt.Errorf("feeds resolve command prefix: %w", err)
	}

	m.sink = sink
	m.moderators = moderators
	m.prefix = prefix

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.log().InfoContext(ctx, "feeds module started",
		"base_url", m.cfg.BaseURL,
		"depth", m.cfg.Depth,
		"cache_ttl", m.cfg.CacheTTL,
		"cooldown", m.cfg.Cooldown,
	)

	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) setLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	m.logger = logger
	m.fetcher.logger = logger
	m.registry.logger = logger
}

func (m *Module) log() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}

	return m.logger
}
