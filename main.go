package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"marketreport/internal/aggregator"
	"marketreport/internal/bondyield"
	"marketreport/internal/config"
	"marketreport/internal/mailer"
	"marketreport/internal/metrics"
	"marketreport/internal/ratelimit"
	"marketreport/internal/report"
	"marketreport/internal/scrape"
	"marketreport/internal/yahoo"
)

func main() {
	// Create context with cancellation for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "marketreport: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logOut io.Writer) error {
	flags := pflag.NewFlagSet("marketreport", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file")
	dryRun := flags.Bool("dry-run", false, "write the report to --output instead of mailing it")
	runTimeout := flags.Duration("timeout", 5*time.Minute, "upper bound for the whole run")
	flags.StringP("output", "o", "market_report.html", "file the report is written to when not mailed")
	flags.String("metrics-file", "", "write run metrics to this node_exporter textfile")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.Int("concurrency", 1, "number of sources fetched at once")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Load configuration
	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)

	applyRateLimits(cfg, logger)

	m := metrics.New()
	params := cfg.BondParams()
	agg := aggregator.New(
		yahoo.NewQuoteFetcher(cfg.Yahoo.BaseURL, cfg.Yahoo.Range, cfg.ClientOptions()),
		scrape.NewYieldFetcher(cfg.ClientOptions()),
		func(price float64) (float64, error) { return bondyield.ImpliedYield(price, params) },
		aggregator.WithConcurrency(cfg.Concurrency),
		aggregator.WithRecorder(m),
		aggregator.WithLogger(logger),
	)

	// Add timeout to prevent hanging indefinitely
	fetchCtx, fetchCancel := context.WithTimeout(ctx, *runTimeout)
	defer fetchCancel()

	logger.Info("fetching market data",
		"instruments", len(cfg.Instruments),
		"yield_pages", len(cfg.YieldPages),
		"concurrency", cfg.Concurrency)
	table := agg.Run(fetchCtx, cfg.QuoteInstruments(), cfg.Pages())

	counts := table.Counts()
	logger.Info("market data collected",
		"rows", table.Len(),
		"ok", counts["ok"],
		"no_data", counts["no_data"],
		"error", counts["error"])

	renderer, err := report.New(cfg.Report.Title, cfg.Report.Timezone, sources(cfg))
	if err != nil {
		return err
	}
	body, err := renderer.HTML(table.Rows(), table.GeneratedAt())
	if err != nil {
		return err
	}

	if *dryRun || !cfg.MailEnabled() {
		if err := os.WriteFile(cfg.Report.Output, []byte(body), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		logger.Info("report written", "path", cfg.Report.Output)
	} else {
		subject := mailer.Subject(cfg.Report.Title, table.GeneratedAt().In(renderer.Location()))
		mm, err := mailer.New(cfg.Mailer())
		if err != nil {
			return err
		}
		if err := mm.Send(ctx, subject, body); err != nil {
			return err
		}
		logger.Info("report mailed",
			"subject", subject,
			"to", len(cfg.SMTP.To),
			"bcc", len(cfg.SMTP.Bcc))
	}

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			// best effort, the report has already been delivered
			logger.Warn("failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	return nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// applyRateLimits installs configured per-upstream limits over the built-in ones
func applyRateLimits(cfg *config.Config, logger *slog.Logger) {
	for api, l := range cfg.RateLimits() {
		ratelimit.GetLimiter().SetLimit(api, rate.Limit(l.PerSecond), l.Burst)
		logger.Debug("rate limit configured", "api", string(api), "per_second", l.PerSecond, "burst", l.Burst)
	}
}

// sources names the upstreams for the report footer
func sources(cfg *config.Config) []string {
	out := []string{"Yahoo Finance"}
	seen := map[string]bool{}
	for _, p := range cfg.YieldPages {
		u, err := url.Parse(p.URL)
		if err != nil || u.Host == "" || seen[u.Host] {
			continue
		}
		seen[u.Host] = true
		out = append(out, u.Host)
	}
	return out
}
