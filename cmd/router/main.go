// ====================================
// File: cmd/router/main.go
// ====================================
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rovshanmuradov/defi-router/internal/app"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	runner := app.NewRunner()
	if err := runner.Initialize(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer runner.Shutdown()

	if err := runner.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "router exited with error: %v\n", err)
		os.Exit(1)
	}
}
