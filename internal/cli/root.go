// Package cli implements the fincache command-line interface.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/finboard/fincache/internal/cache"
	"github.com/finboard/fincache/internal/config"
	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/model"
	"github.com/finboard/fincache/internal/provider"
	"github.com/finboard/fincache/internal/refresh"
	"github.com/finboard/fincache/internal/store"
)

// Global flags
var (
	verbose      bool
	quiet        bool
	raw          bool
	sourceFlag   string
	forceRefresh bool
	queueMode    bool
	cacheDir     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "fincache",
	Short:   "fincache – cached financial transaction queries",
	Long:    `A command-line utility for querying financial transactions through a local range cache.`,
	Version: core.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress progress messages")
	rootCmd.PersistentFlags().BoolVar(&raw, "raw", false, "Emit raw JSON instead of text")
	rootCmd.PersistentFlags().StringVarP(&sourceFlag, "source", "s", string(model.SourceZoho), "Transaction source (zoho, stripe)")
	rootCmd.PersistentFlags().BoolVarP(&forceRefresh, "force-refresh", "f", false, "Refetch the full range even when cached")
	rootCmd.PersistentFlags().BoolVar(&queueMode, "queue", false, "Wait for an in-flight refresh instead of failing fast")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Cache directory (default: $FINCACHE_HOME/cache)")
}

// newManager wires the configured backend, provider, and coordinator.
func newManager() (*cache.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := config.ConfigureLogging(cfg)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if quiet {
		logger.SetLevel(logrus.ErrorLevel)
	}
	log := logrus.NewEntry(logger)

	dir := cacheDir
	if dir == "" {
		dir = cfg.Cache.Dir
	}
	backend := store.NewFilesystemBackend(dir)

	prov := provider.NewClient(map[model.Source]provider.Endpoint{
		model.SourceZoho:   {BaseURL: cfg.Providers.Zoho.BaseURL, APIKey: cfg.Providers.Zoho.APIKey},
		model.SourceStripe: {BaseURL: cfg.Providers.Stripe.BaseURL, APIKey: cfg.Providers.Stripe.APIKey},
	}, log)

	coord := refresh.New(refresh.Config{
		MaxPerSession: cfg.Refresh.MaxPerSession,
		MinInterval:   minIntervalDuration(cfg),
	}, log)

	m := cache.NewManager(backend, prov, coord, log)
	m.SetWorkers(cfg.Fetch.Workers)
	return m, nil
}

func selectedSource() (model.Source, error) {
	return model.ParseSource(sourceFlag)
}

func refreshMode() refresh.Mode {
	if queueMode {
		return refresh.ModeQueue
	}
	return refresh.ModeReject
}

func minIntervalDuration(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Refresh.MinIntervalMs) * time.Millisecond
}
