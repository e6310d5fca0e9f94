package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"subroll/internal/driver"
	"subroll/modules/feeds"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagPages    = "pages"

	fetchSampleSize = 5
)

func newApp(stdout io.Writer, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:  "subroll",
		Usage: "Telegram bot that posts random media from subscribed subreddits",
		Description: `subroll lets a chat subscribe to subreddit feeds and posts random
cached items with reaction controls for re-roll, confirm and delete.

The config file is resolved from --config, then SUBROLL_CONFIG_FILE, then
config/bot.json, config/bot.toml and bin/config/bot.json.`,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to the JSON or TOML config file",
				EnvVars: []string{envConfigFile},
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Usage:   "override log_level (debug, info, warn, error)",
				EnvVars: []string{"SUBROLL_LOG_LEVEL"},
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "start the bot",
				Action: runAction,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the config file",
				Action: checkConfigAction,
			},
			{
				Name:      "fetch",
				Usage:     "populate one feed from the listing API and print a sample",
				ArgsUsage: "<feed>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagPages,
						Usage: "number of listing pages to walk (defaults to feeds.depth)",
					},
				},
				Action: fetchAction,
			},
		},
	}
}

func runAction(c *cli.Context) error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}
	cfg, err := loadConfig(c.String(flagConfig), registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := commandLogger(c, c.App.Writer, cfg.logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting subroll",
		"config", cfg.path,
		"drivers", len(cfg.enabledDrivers()),
		"metrics", cfg.metricsEnabled,
	)

	return runBot(ctx, logger, cfg, registry)
}

func checkConfigAction(c *cli.Context) error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}
	cfg, err := loadConfig(c.String(flagConfig), registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "config %s ok\n", cfg.path)
	for _, definition := range cfg.enabledDrivers() {
		fmt.Fprintf(out, "driver %s (%s)\n", definition.Name, definition.Type)
	}
	fmt.Fprintf(out, "feeds: depth=%d cache_ttl=%s cooldown=%s prefix=%s\n",
		cfg.feeds.Depth,
		cfg.feeds.CacheTTL,
		cfg.feeds.Cooldown,
		cfg.commandPrefix,
	)
	if cfg.metricsEnabled {
		fmt.Fprintf(out, "metrics: %s\n", cfg.metricsListen)
	} else {
		fmt.Fprintln(out, "metrics: disabled")
	}

	return nil
}

func fetchAction(c *cli.Context) error {
	feed := strings.TrimSpace(c.Args().First())
	if feed == "" {
		return fmt.Errorf("fetch: feed name is required")
	}

	cfg, err := loadFetchConfig(c.String(flagConfig))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := commandLogger(c, c.App.ErrWriter, cfg.logLevel)
	if err != nil {
		return err
	}

	fetcher := feeds.NewFetcher(cfg.feeds, feeds.WithFetcherLogger(logger))
	pages := fetcher.Depth()
	if c.IsSet(flagPages) {
		pages = c.Int(flagPages)
		if pages <= 0 {
			return fmt.Errorf("fetch: --%s must be > 0", flagPages)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, err := fetcher.Populate(ctx, feed, pages)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", feed, err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "feed %s: %d items from %d page(s)\n", feed, len(items), pages)
	for index, item := range items {
		if index == fetchSampleSize {
			break
		}
		link := item.URL
		if item.VideoURL != "" {
			link = item.VideoURL
		}
		fmt.Fprintf(out, "- %s | %s\n", item.Title, link)
	}

	return nil
}

// loadFetchConfig reads only the sections the fetch command needs and falls
// back to defaults when no config file exists.
func loadFetchConfig(explicitPath string) (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath(explicitPath)
	if err != nil {
		if strings.TrimSpace(explicitPath) != "" {
			return appConfig{}, err
		}
		return cfg, nil
	}
	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := cfg.feeds.Validate(); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: feeds: %w", configFile, err)
	}

	return cfg, nil
}

func commandLogger(c *cli.Context, output io.Writer, configured slog.Level) (*slog.Logger, error) {
	level := configured
	if raw := strings.TrimSpace(c.String(flagLogLevel)); raw != "" {
		parsed, err := parseLogLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("parse --%s: %w", flagLogLevel, err)
		}
		level = parsed
	}
	if output == nil {
		return nil, errors.New("command logger: nil output")
	}

	return newLogger(output, level), nil
}
