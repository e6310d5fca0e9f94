package feeds

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the listing host used when none is configured.
	DefaultBaseURL = "https://www.reddit.com"
	// DefaultUserAgent identifies listing requests.
	DefaultUserAgent = "subroll/1.0 (+https://github.com/subroll/subroll)"
	// DefaultDepth is the full population depth in pages.
	DefaultDepth = 15
	// DefaultPageDelay paces consecutive listing requests.
	DefaultPageDelay = time.Second
	// DefaultCacheTTL is how long a populated feed is served without refresh.
	DefaultCacheTTL = 10 * time.Minute
	// DefaultCooldown is how long a message stays locked after an accepted reaction.
	DefaultCooldown = 2100 * time.Millisecond
	// DefaultPostedCapacity bounds how many posted messages are remembered.
	DefaultPostedCapacity = 4096

	defaultRequestTimeout = 30 * time.Second
	defaultCommandTimeout = 10 * time.Minute
)

// Reactions names the control emoji attached to posted items.
type Reactions struct {
	Reroll  string
	Confirm string
	Delete  string
}

// DefaultReactions returns controls that Telegram accepts as standard reactions.
func DefaultReactions() Reactions {
	return Reactions{
		Reroll:  "🔥",
		Confirm: "👍",
		Delete:  "👎",
	}
}

// Ordered returns controls in the order they are attached to a message.
func (r Reactions) Ordered() []string {
	return []string{r.Reroll, r.Confirm, r.Delete}
}

// Config configures feeds module behavior.
type Config struct {
	// BaseURL is the listing host, without trailing slash.
	BaseURL string
	// UserAgent is sent with every listing request.
	UserAgent string
	// PageDelay is the pause between consecutive pages of one population.
	PageDelay time.Duration
	// CacheTTL is how long a populated feed is fresh.
	CacheTTL time.Duration
	// Depth is the number of pages of a full population.
	Depth int
	// Cooldown is the per-message reaction lock window.
	Cooldown time.Duration
	// RequestTimeout bounds one listing HTTP request.
	RequestTimeout time.Duration
	// CommandTimeout bounds one feed command, including population of every named feed.
	CommandTimeout time.Duration
	// Admins are actor IDs allowed to run feed commands in any conversation.
	Admins []string
	// Reactions are the control emoji.
	Reactions Reactions
	// PostedCapacity bounds the remembered posted messages.
	PostedCapacity int
	// ControlLimit caps how many controls are attached to a post, in
	// Ordered order. Zero attaches all of them. Telegram bots hold a single
	// reaction per message, so a limit of 1 there shows only the re-roll
	// control; users can still react with the others.
	ControlLimit int
}

// DefaultConfig returns the built-in feeds configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      DefaultUserAgent,
		PageDelay:      DefaultPageDelay,
		CacheTTL:       DefaultCacheTTL,
		Depth:          DefaultDepth,
		Cooldown:       DefaultCooldown,
		RequestTimeout: defaultRequestTimeout,
		CommandTimeout: defaultCommandTimeout,
		Reactions:      DefaultReactions(),
		PostedCapacity: DefaultPostedCapacity,
	}
}

type fileConfig struct {
	BaseURL        string         `json:"base_url"`
	UserAgent      string         `json:"user_agent"`
	PageDelay      string         `json:"page_delay"`
	CacheTTL       string         `json:"cache_ttl"`
	Depth          *int           `json:"depth"`
	Cooldown       string         `json:"cooldown"`
	RequestTimeout string         `json:"request_timeout"`
	CommandTimeout string         `json:"command_timeout"`
	Admins         []string       `json:"admins"`
	Reactions      *fileReactions `json:"reactions"`
	PostedCapacity *int           `json:"posted_capacity"`
	ControlLimit   *int           `json:"control_limit"`
}

type fileReactions struct {
	Reroll  string `json:"reroll"`
	Confirm string `json:"confirm"`
	Delete  string `json:"delete"`
}

// ParseConfig overlays a raw JSON feeds section on DefaultConfig.
//
// An empty or null section yields the defaults.
func ParseConfig(raw json.RawMessage) (Config, error) {
	cfg := DefaultConfig()
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return cfg, nil
	}

	var parsed fileConfig
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return Config{}, fmt.Errorf("parse feeds config: %w", err)
	}

	if parsed.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(parsed.BaseURL), "/")
	}
	if parsed.UserAgent != "" {
		cfg.UserAgent = strings.TrimSpace(parsed.UserAgent)
	}
	if parsed.Depth != nil {
		cfg.Depth = *parsed.Depth
	}
	if parsed.PostedCapacity != nil {
		cfg.PostedCapacity = *parsed.PostedCapacity
	}
	if parsed.ControlLimit != nil {
		cfg.ControlLimit = *parsed.ControlLimit
	}
	if len(parsed.Admins) > 0 {
		cfg.Admins = append([]string(nil), parsed.Admins...)
	}
	if parsed.Reactions != nil {
		if parsed.Reactions.Reroll != "" {
			cfg.Reactions.Reroll = parsed.Reactions.Reroll
		}
		if parsed.Reactions.Confirm != "" {
			cfg.Reactions.Confirm = parsed.Reactions.Confirm
		}
		if parsed.Reactions.Delete != "" {
			cfg.Reactions.Delete = parsed.Reactions.Delete
		}
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{field: "page_delay", raw: parsed.PageDelay, dst: &cfg.PageDelay},
		{field: "cache_ttl", raw: parsed.CacheTTL, dst: &cfg.CacheTTL},
		{field: "cooldown", raw: parsed.Cooldown, dst: &cfg.Cooldown},
		{field: "request_timeout", raw: parsed.RequestTimeout, dst: &cfg.RequestTimeout},
		{field: "command_timeout", raw: parsed.CommandTimeout, dst: &cfg.CommandTimeout},
	}
	for _, duration := range durations {
		if duration.raw == "" {
			continue
		}
		value, err := time.ParseDuration(duration.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse feeds config %s: %w", duration.field, err)
		}
		*duration.dst = value
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration coherence.
func (cfg Config) Validate() error {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base_url: %w", ErrInvalidConfig, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%w: base_url %q is not absolute", ErrInvalidConfig, cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return fmt.Errorf("%w: missing user_agent", ErrInvalidConfig)
	}
	if cfg.Depth <= 0 {
		return fmt.Errorf("%w: depth must be positive", ErrInvalidConfig)
	}
	if cfg.PageDelay < 0 {
		return fmt.Errorf("%w: page_delay must not be negative", ErrInvalidConfig)
	}
	if cfg.CacheTTL <= 0 || cfg.Cooldown <= 0 || cfg.RequestTimeout <= 0 || cfg.CommandTimeout <= 0 {
		return fmt.Errorf("%w: cache_ttl, cooldown, request_timeout and command_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.PostedCapacity <= 0 {
		return fmt.Errorf("%w: posted_capacity must be positive", ErrInvalidConfig)
	}
	if cfg.ControlLimit < 0 {
		return fmt.Errorf("%w: control_limit must not be negative", ErrInvalidConfig)
	}

	seen := make(map[string]struct{}, 3)
	for _, emoji := range cfg.Reactions.Ordered() {
		if emoji == "" {
			return fmt.Errorf("%w: empty control reaction", ErrInvalidConfig)
		}
		if _, exists := seen[emoji]; exists {
			return fmt.Errorf("%w: duplicate control reaction %q", ErrInvalidConfig, emoji)
		}
		seen[emoji] = struct{}{}
	}

	return nil
}
