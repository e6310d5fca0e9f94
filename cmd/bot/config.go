package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subroll/internal/driver"
	"subroll/internal/telemetry"
	"subroll/modules/feeds"
	"subroll/pkg/subroll"

	"github.com/BurntSushi/toml"
)

const (
	envConfigFile             = "SUBROLL_CONFIG_FILE"
	defaultConfigFilePath     = "config/bot.json"
	tomlConfigFilePath        = "config/bot.toml"
	alternateConfigFilePath   = "bin/config/bot.json"
	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 2
)

var configFileCandidates = []string{defaultConfigFilePath, tomlConfigFilePath, alternateConfigFilePath}

type appConfig struct {
	path     string
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int
	commandPrefix       string

	drivers []driver.Definition
	feeds   feeds.Config

	metricsEnabled bool
	metricsListen  string
}

type fileConfig struct {
	LogLevel string            `json:"log_level"`
	Kernel   fileKernelConfig  `json:"kernel"`
	Drivers  []fileDriverEntry `json:"drivers"`
	Feeds    json.RawMessage   `json:"feeds"`
	Metrics  fileMetricsConfig `json:"metrics"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
	CommandPrefix       string `json:"command_prefix"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

type fileMetricsConfig struct {
	Enabled *bool  `json:"enabled"`
	Listen  string `json:"listen"`
}

func loadConfig(explicitPath string, registry *driver.Registry) (appConfig, error) {
	configFile, err := resolveConfigFilePath(explicitPath)
	if err != nil {
		return appConfig{}, err
	}

	cfg := defaultAppConfig()
	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath(explicitPath string) (string, error) {
	if configFile := strings.TrimSpace(explicitPath); configFile != "" {
		return configFile, nil
	}

	for _, candidate := range configFileCandidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s, or set --config or %s",
		strings.Join(configFileCandidates, ", "),
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,
		commandPrefix:       subroll.DefaultCommandPrefix,

		drivers: make([]driver.Definition, 0),
		feeds:   feeds.DefaultConfig(),

		metricsListen: telemetry.DefaultListenAddress,
	}
}

// readConfigDocument returns the config file as JSON; TOML files are re-encoded
// so both formats share one schema.
func readConfigDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".toml") {
		return data, nil
	}

	document := make(map[string]any)
	if _, err := toml.Decode(string(data), &document); err != nil {
		return nil, fmt.Errorf("decode toml config file %s: %w", path, err)
	}
	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("encode toml config file %s: %w", path, err)
	}

	return encoded, nil
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := readConfigDocument(path)
	if err != nil {
		return err
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.path = path

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if err := applyKernelConfig(cfg, parsed.Kernel); err != nil {
		return err
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
	}

	feedsConfig, err := feeds.ParseConfig(parsed.Feeds)
	if err != nil {
		return fmt.Errorf("parse feeds: %w", err)
	}
	cfg.feeds = feedsConfig

	if parsed.Metrics.Enabled != nil {
		cfg.metricsEnabled = *parsed.Metrics.Enabled
	}
	if listen := strings.TrimSpace(parsed.Metrics.Listen); listen != "" {
		cfg.metricsListen = listen
	}

	return nil
}

func applyKernelConfig(cfg *appConfig, parsed fileKernelConfig) error {
	durations := []struct {
		field  string
		raw    string
		target *time.Duration
	}{
		{field: "kernel.module_hook_timeout", raw: parsed.ModuleHookTimeout, target: &cfg.moduleHookTimeout},
		{field: "kernel.shutdown_timeout", raw: parsed.ShutdownTimeout, target: &cfg.shutdownTimeout},
	}
	for _, duration := range durations {
		raw := strings.TrimSpace(duration.raw)
		if raw == "" {
			continue
		}
		value, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", duration.field, err)
		}
		if value <= 0 {
			return fmt.Errorf("parse %s: must be > 0", duration.field)
		}
		*duration.target = value
	}

	if parsed.SubscriptionBuffer != nil {
		if *parsed.SubscriptionBuffer <= 0 {
			return fmt.Errorf("parse kernel.subscription_buffer: must be > 0")
		}
		cfg.subscriptionBuffer = *parsed.SubscriptionBuffer
	}
	if parsed.SubscriptionWorkers != nil {
		if *parsed.SubscriptionWorkers <= 0 {
			return fmt.Errorf("parse kernel.subscription_workers: must be > 0")
		}
		cfg.subscriptionWorkers = *parsed.SubscriptionWorkers
	}
	if parsed.CommandPrefix != "" {
		if err := subroll.ValidateCommandPrefix(parsed.CommandPrefix); err != nil {
			return fmt.Errorf("parse kernel.command_prefix: %w", err)
		}
		cfg.commandPrefix = parsed.CommandPrefix
	}

	return nil
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	seen := make(map[string]struct{}, len(cfg.drivers))
	enabled := 0
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := seen[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		seen[definition.Name] = struct{}{}
		if !definition.Enabled {
			continue
		}
		if _, err := registry.PlatformForType(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	if err := cfg.feeds.Validate(); err != nil {
		return fmt.Errorf("feeds: %w", err)
	}

	return nil
}

func (cfg appConfig) enabledDrivers() []driver.Definition {
	enabled := make([]driver.Definition, 0, len(cfg.drivers))
	for _, definition := range cfg.drivers {
		if definition.Enabled {
			enabled = append(enabled, definition)
		}
	}

	return enabled
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
