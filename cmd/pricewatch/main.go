// Command pricewatch scrapes retailer product pages and keeps their price
// history.
//
// Usage:
//
//	pricewatch scrape https://www.coolblue.nl/product/123
//	pricewatch track kettle-1700 coolblue https://www.coolblue.nl/product/123
//	pricewatch trend kettle-1700 coolblue --days 30
//	pricewatch yoy kettle-1700 coolblue "Black Friday"
//	pricewatch serve --config pricewatch.yaml --addr :8080
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pricewatch/pricewatch"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pricewatch",
		Short:         "Adaptive multi-tier price scraper with price history",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to pricewatch.yaml")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides db_path)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newScrapeCmd(opts),
		newTrackCmd(opts),
		newTrendCmd(opts),
		newYearOverYearCmd(opts),
		newSelectorsCmd(opts),
		newEventsCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func (o *rootOptions) logger() *slog.Logger {
	var level slog.Level
	switch o.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) config() (pricewatch.Config, error) {
	cfg := pricewatch.DefaultConfig()
	if o.configPath != "" {
		loaded, err := pricewatch.LoadConfigFile(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	return cfg, nil
}

// service loads the configuration and opens the service. The caller closes it.
func (o *rootOptions) service() (*pricewatch.Service, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	logger := o.logger()
	slog.SetDefault(logger)
	return pricewatch.New(cfg, logger)
}
