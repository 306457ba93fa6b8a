package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mouaddiguoug/feetflight/internal/app"
	"github.com/Mouaddiguoug/feetflight/internal/config"
	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
)

var Version = "dev"

func main() {
	var envFile string
	rootCmd := &cobra.Command{
		Use:           "feetflight",
		Short:         "Feetflight content marketplace API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd(&envFile))
	rootCmd.AddCommand(schemaCmd(&envFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func load(envFile string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New("feetflight", cfg.LogLevel, cfg.LogFormat), nil
}

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(*envFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					logger.WithContext(ctx).WithError(err).Warn("close failed")
				}
			}()
			return a.Run(ctx)
		},
	}
}

func schemaCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the graph constraints and indexes, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(*envFile)
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StoreNeo4j {
				return fmt.Errorf("schema requires STORE_DRIVER=%s", config.StoreNeo4j)
			}

			ctx := cmd.Context()
			exec, err := app.OpenGraph(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer exec.Close(context.Background())

			if err := graphdb.EnsureSchema(ctx, exec); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
