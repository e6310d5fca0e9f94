package driver

import (
	"context"
	"fmt"
	"log/slog"

	"subroll/internal/driver/telegram"
)

// NewBuiltinRegistry returns a registry of the driver types compiled into
// the binary. Telegram is currently the only one.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{Type: telegram.DriverType, Platform: telegram.DriverPlatform, Builder: buildTelegram},
	})
}

func buildTelegram(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	built, err := telegram.BuildRuntimeFromConfig(definition.Name, logger, definition.Config)
	if err != nil {
		return Runtime{}, fmt.Errorf("build telegram runtime from config: %w", err)
	}

	return Runtime(built), nil
}
