package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/khobor-desk/internal/config"
	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
	"github.com/Adda-Baaj/khobor-desk/internal/storage"
	"github.com/Adda-Baaj/khobor-desk/pkg/publishers"
)

var (
	configFile string
	verbose    bool

	cfg *config.Config
	log logger.Logger = logger.NopLogger{}
)

var rootCmd = &cobra.Command{
	Use:   "khobor",
	Short: "khobor-desk - news story monitoring for tracked companies",
	Long: `khobor-desk harvests news about the companies you track, files the
matching articles as stories, links duplicate coverage and extracts the
people, organisations and places they mention.

Run "khobor serve" for the web desk or "khobor list" to browse from a
terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		l, err := logger.New(logger.Options{Level: loaded.Log.Level, Development: loaded.Log.Development})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		cfg, log = loaded, l
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd, ingestCmd, dedupeCmd, extractCmd, listCmd, browseCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openStore() (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	log.DebugObj("store opened", "store_open", map[string]any{"path": cfg.Storage.Path})
	return store, nil
}

// eventPublisher builds the configured publishers, or returns nil when no
// publishers file is set. The returned release func is always safe to call.
func eventPublisher(ctx context.Context) (domain.EventPublisher, func(), error) {
	release := func() {}
	if cfg.Ingest.PublishersFile == "" {
		return nil, release, nil
	}
	cfgs, err := publishers.LoadConfigs(cfg.Ingest.PublishersFile)
	if err != nil {
		return nil, release, err
	}
	d, err := publishers.NewDispatcher(ctx, publishers.DefaultRegistry(), cfgs, log)
	if err != nil {
		return nil, release, err
	}
	release = func() {
		if err := d.Close(); err != nil {
			log.WarnObj("publishers close failed", "publishers_close_error", map[string]any{"error": err.Error()})
		}
	}
	log.InfoObj("publishers ready", "publishers_ready", map[string]any{"count": d.Len()})
	if d.Len() == 0 {
		return nil, release, nil
	}
	return d, release, nil
}
