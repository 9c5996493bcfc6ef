package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/app"
	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/logger"
)

// Populated via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

var cfgPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "switchyard",
		Short: "Cost-aware LLM routing gateway",
		Long: `Switchyard routes every query to the cheapest model capable of
answering it, escalating through a cascade of stronger models only when the
response quality falls short.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "directory containing config.yaml")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			log, err := logger.Initialize(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			a, err := app.Build(cfg, log)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("starting switchyard", zap.String("version", version))
			return a.Run(ctx)
		},
	}
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			fmt.Printf("configuration OK\n")
			fmt.Printf("  server:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("  strategy: %s\n", cfg.Routing.DefaultStrategy)
			fmt.Printf("  cache:    %s\n", cfg.Cache.Adapter)
			fmt.Printf("  budget:   daily $%.2f / weekly $%.2f / monthly $%.2f\n",
				cfg.Budget.Daily.Limit, cfg.Budget.Weekly.Limit, cfg.Budget.Monthly.Limit)
			return nil
		},
	})

	return configCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("switchyard %s (%s)\n", version, commit)
		},
	}
}
