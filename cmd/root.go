// Package cmd defines and implements the CLI commands for the crawlstore executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlstore/internal/app"
	"github.com/JakeFAU/crawlstore/internal/config"
	"github.com/JakeFAU/crawlstore/internal/logging"
	"github.com/JakeFAU/crawlstore/internal/pool"
	"github.com/JakeFAU/crawlstore/internal/processor"
	"github.com/JakeFAU/crawlstore/internal/writer"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const (
	appKey appKeyType = "app"

	// annotationNoApp marks commands that only need configuration.
	annotationNoApp = "crawlstore/no-app"
)

// App defines the services commands use. It lets tests inject their own.
type App interface {
	Close() error
	Ready(ctx context.Context) error
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetProcessor() *processor.Processor
	GetPool() *pool.Pool[*writer.Writer]
}

// newApp is the application factory, swappable in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.NewApp(ctx, cfg, logger)
}

type cliState struct {
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	state := &cliState{}
	cmd := &cobra.Command{
		Use:   "crawlstore",
		Short: "Persists fetched crawl records into a deduplicating key-value store.",
		Long: `crawlstore writes crawl records into two tables: a URL table keyed by the
host-reversed URL, and a content table keyed by the content digest so identical
payloads are stored once no matter how many URLs serve them.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(state.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				File:        cfg.Logging.File,
				MaxSizeMB:   cfg.Logging.MaxSizeMB,
				MaxBackups:  cfg.Logging.MaxBackups,
				MaxAgeDays:  cfg.Logging.MaxAgeDays,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			state.cfg, state.logger = cfg, logger

			if cmd.Annotations[annotationNoApp] != "" {
				return nil
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				err = appInstance.Close()
			}
			if state.logger != nil {
				_ = state.logger.Sync()
			}
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&state.cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newFetchCmd(),
		newKeyCmd(),
		newDigestCmd(state),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
