package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		slog.Error("subroll exited with error", "error", err)
		os.Exit(1)
	}
}
