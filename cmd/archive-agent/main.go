// Package main runs the web archive capture agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/JakeFAU/web-archive-agent/internal/config"
	"github.com/JakeFAU/web-archive-agent/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; ARCHIVE_* env vars override it")
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintln(os.Stderr, "archive-agent:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}
	return app.Run(ctx)
}
