package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"subroll/internal/driver"
	"subroll/internal/kernel"
	"subroll/internal/telemetry"
	"subroll/modules/feeds"
	"subroll/modules/help"
	"subroll/modules/pingpong"
	"subroll/pkg/subroll"
)

var errShuttingDown = errors.New("shutting down")

func newLogger(output io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
}

func runBot(ctx context.Context, logger *slog.Logger, cfg appConfig, registry *driver.Registry) error {
	kernelRuntime := buildKernelRuntime(logger, cfg)

	drivers, router, err := buildDriverRuntime(ctx, logger, cfg, registry)
	if err != nil {
		return err
	}

	if err := registerRuntimeDrivers(kernelRuntime, drivers); err != nil {
		return err
	}
	if err := registerRuntimeServices(kernelRuntime, router); err != nil {
		return err
	}
	if err := registerRuntimeModules(ctx, kernelRuntime, logger, cfg); err != nil {
		return err
	}

	telemetryErr := make(chan error, 1)
	if cfg.metricsEnabled {
		server := telemetry.New(
			cfg.metricsListen,
			telemetry.WithLogger(logger),
			telemetry.WithShutdownTimeout(cfg.shutdownTimeout),
			telemetry.WithHealthCheck(func(context.Context) error {
				if ctx.Err() != nil {
					return errShuttingDown
				}
				return nil
			}),
		)
		go func() {
			telemetryErr <- server.Run(ctx)
		}()
	} else {
		telemetryErr <- nil
	}

	runErr := kernelRuntime.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		runErr = fmt.Errorf("run kernel: %w", runErr)
	} else {
		runErr = nil
	}
	if err := <-telemetryErr; err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("run telemetry: %w", err))
	}

	return runErr
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
		kernel.WithCommandPrefix(cfg.commandPrefix),
	)
}

func buildDriverRuntime(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) ([]subroll.Driver, *driver.Router, error) {
	if registry == nil {
		return nil, nil, fmt.Errorf("build drivers: nil driver registry")
	}

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build drivers: %w", err)
	}

	drivers := make([]subroll.Driver, 0, len(runtimes))
	for _, runtime := range runtimes {
		drivers = append(drivers, runtime.Driver)
	}

	router, err := driver.NewRouter(runtimes)
	if err != nil {
		return nil, nil, fmt.Errorf("build sink router: %w", err)
	}

	return drivers, router, nil
}

func registerRuntimeServices(kernelRuntime *kernel.Kernel, router *driver.Router) error {
	if router == nil {
		return fmt.Errorf("register sink dispatcher service: nil router")
	}
	if err := kernelRuntime.RegisterService(subroll.ServiceSinkDispatcher, router); err != nil {
		return fmt.Errorf("register sink dispatcher service: %w", err)
	}
	if err := kernelRuntime.RegisterService(subroll.ServiceModeratorChecker, router); err != nil {
		return fmt.Errorf("register moderator checker service: %w", err)
	}

	return nil
}

func buildRuntimeModules(logger *slog.Logger, cfg appConfig) ([]subroll.Module, error) {
	feedsModule, err := feeds.New(cfg.feeds, feeds.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build feeds module: %w", err)
	}

	return []subroll.Module{
		feedsModule,
		pingpong.New(),
		help.New(),
	}, nil
}

func registerRuntimeModules(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	cfg appConfig,
) error {
	modules, err := buildRuntimeModules(logger, cfg)
	if err != nil {
		return err
	}
	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register %s module: %w", module.Name(), err)
		}
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []subroll.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}
