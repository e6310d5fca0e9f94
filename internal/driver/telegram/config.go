package telegram

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	defaultRuntimeSessionFile  = ".cache/telegram/session.json"
	defaultRuntimePublishDelay = 2 * time.Second
	defaultRuntimeAuthTimeout  = 3 * time.Minute
	defaultRuntimeUpdateBuffer = 256
)

// runtimeConfigJSON is the driver's config section as written by operators.
// Durations are Go duration strings.
type runtimeConfigJSON struct {
	AppID          int    `json:"app_id"`
	AppHash        string `json:"app_hash"`
	BotToken       string `json:"bot_token"`
	Phone          string `json:"phone"`
	Code           string `json:"code"`
	Password       string `json:"password"`
	SessionFile    string `json:"session_file"`
	PublishTimeout string `json:"publish_timeout"`
	AuthTimeout    string `json:"auth_timeout"`
	UpdateBuffer   int    `json:"update_buffer"`
	ReactionLimit  int    `json:"reaction_limit"`
	Reconnect      struct {
		InitialInterval string `json:"initial_interval"`
		MaxInterval     string `json:"max_interval"`
	} `json:"reconnect"`
}

type parsedRuntimeConfig struct {
	appID    int
	appHash  string
	botToken string
	phone    string
	code     string
	password string

	sessionFile   string
	updateBuffer  int
	reactionLimit int

	publishTimeout           time.Duration
	authTimeout              time.Duration
	reconnectInitialInterval time.Duration
	reconnectMaxInterval     time.Duration
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}
	var in runtimeConfigJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := parsedRuntimeConfig{
		appID:         in.AppID,
		appHash:       strings.TrimSpace(in.AppHash),
		botToken:      strings.TrimSpace(in.BotToken),
		phone:         strings.TrimSpace(in.Phone),
		code:          strings.TrimSpace(in.Code),
		password:      strings.TrimSpace(in.Password),
		sessionFile:   cmp.Or(strings.TrimSpace(in.SessionFile), defaultRuntimeSessionFile),
		updateBuffer:  positiveOr(in.UpdateBuffer, defaultRuntimeUpdateBuffer),
		reactionLimit: positiveOr(in.ReactionLimit, defaultReactionLimit),
	}

	var err error
	durations := []struct {
		key      string
		raw      string
		fallback time.Duration
		target   *time.Duration
	}{
		{"publish_timeout", in.PublishTimeout, defaultRuntimePublishDelay, &cfg.publishTimeout},
		{"auth_timeout", in.AuthTimeout, defaultRuntimeAuthTimeout, &cfg.authTimeout},
		{"reconnect.initial_interval", in.Reconnect.InitialInterval, defaultReconnectInitialInterval, &cfg.reconnectInitialInterval},
		{"reconnect.max_interval", in.Reconnect.MaxInterval, defaultReconnectMaxInterval, &cfg.reconnectMaxInterval},
	}
	for _, field := range durations {
		if *field.target, err = parseDurationOr(field.key, field.raw, field.fallback); err != nil {
			return parsedRuntimeConfig{}, err
		}
	}

	switch {
	case cfg.reconnectMaxInterval < cfg.reconnectInitialInterval:
		return parsedRuntimeConfig{}, fmt.Errorf("reconnect.max_interval must not be below reconnect.initial_interval")
	case cfg.appID <= 0:
		return parsedRuntimeConfig{}, fmt.Errorf("app_id must be > 0")
	case cfg.appHash == "":
		return parsedRuntimeConfig{}, fmt.Errorf("app_hash is required")
	case cfg.botToken == "" && cfg.phone == "":
		return parsedRuntimeConfig{}, fmt.Errorf("either bot_token or phone is required")
	}

	return cfg, nil
}

func parseDurationOr(key, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", key)
	}

	return value, nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}

	return fallback
}
