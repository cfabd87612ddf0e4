package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"masterhand/internal/config"
	"masterhand/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "masterhand",
		Short:        "Craftsman booking and payment service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config (default $CONFIG_PATH or "+defaultConfigPath+")")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(migrateCmd(&configPath))
	return cmd
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return defaultConfigPath
}

func loadConfigAndLogger(configPath string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	path := resolveConfigPath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
