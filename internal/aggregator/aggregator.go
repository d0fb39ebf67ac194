// Package aggregator drives the quote, scrape and derived sources for one
// report run and collects their results into an ordered table.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"marketreport/internal/fetcher"
	"marketreport/internal/format"
)

// ImpliedYieldSuffix is appended to the bond futures name for the derived row
const ImpliedYieldSuffix = " Implied Yield"

// YieldCalculator converts a bond futures price into an implied yield in percent
type YieldCalculator func(price float64) (float64, error)

// Recorder receives one call per observation produced
type Recorder interface {
	ObserveFetch(kind fetcher.SourceKind, status fetcher.Status, elapsed time.Duration)
}

// Aggregator runs every configured source once and assembles the report table
type Aggregator struct {
	quotes      fetcher.QuoteFetcher
	yields      fetcher.YieldFetcher
	calc        YieldCalculator
	concurrency int
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithConcurrency lets up to n entries be fetched at once. The default of 1
// fetches strictly one entry at a time in configuration order.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithRecorder reports every observation to r
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) { a.recorder = r }
}

// WithLogger replaces the default slog logger
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates a new Aggregator with the given sources
func New(quotes fetcher.QuoteFetcher, yields fetcher.YieldFetcher, calc YieldCalculator, opts ...Option) *Aggregator {
	a := &Aggregator{
		quotes:      quotes,
		yields:      yields,
		calc:        calc,
		concurrency: 1,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// entry is one configured instrument or page and the observations it yields
type entry struct {
	inst *fetcher.Instrument
	page *fetcher.Page
	out  []categorized
}

type categorized struct {
	category fetcher.Category
	obs      fetcher.Observation
}

// Run fetches every instrument and then every page, and returns the table in
// that order. A failing source only affects its own row; Run itself never fails.
func (a *Aggregator) Run(ctx context.Context, instruments []fetcher.Instrument, pages []fetcher.Page) *Table {
	entries := make([]*entry, 0, len(instruments)+len(pages))
	for i := range instruments {
		entries = append(entries, &entry{inst: &instruments[i]})
	}
	for i := range pages {
		entries = append(entries, &entry{page: &pages[i]})
	}

	if a.concurrency <= 1 {
		for _, e := range entries {
			a.process(ctx, e)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for _, e := range entries {
			e := e
			g.Go(func() error {
				a.process(ctx, e)
				return nil
			})
		}
		_ = g.Wait()
	}

	rows := make([]format.Row, 0, len(entries)+1)
	observations := make([]fetcher.Observation, 0, len(entries)+1)
	for _, e := range entries {
		for _, c := range e.out {
			observations = append(observations, c.obs)
			rows = append(rows, format.Format(c.category, c.obs))
		}
	}

	return &Table{
		generatedAt:  a.now(),
		rows:         rows,
		observations: observations,
	}
}

// process fills e.out. Each entry owns its slot so concurrent runs keep order.
func (a *Aggregator) process(ctx context.Context, e *entry) {
	if e.inst != nil {
		inst := *e.inst
		futures := a.fetchQuote(ctx, inst)
		e.out = append(e.out, categorized{inst.Category, futures})
		if inst.BondFutures {
			e.out = append(e.out, categorized{fetcher.CategoryYield, a.derive(inst, futures)})
		}
		return
	}

	page := *e.page
	e.out = append(e.out, categorized{fetcher.CategoryYield, a.fetchYield(ctx, page)})
}

func (a *Aggregator) fetchQuote(ctx context.Context, inst fetcher.Instrument) fetcher.Observation {
	return a.guard(fetcher.SourceQuote, inst.Name, inst.Symbol, func() fetcher.Observation {
		return a.quotes.Quote(ctx, inst)
	})
}

func (a *Aggregator) fetchYield(ctx context.Context, page fetcher.Page) fetcher.Observation {
	return a.guard(fetcher.SourceScrape, page.Name, page.URL, func() fetcher.Observation {
		return a.yields.Yield(ctx, page)
	})
}

// derive builds the implied yield row that follows the bond futures row. The
// row is always emitted; when the futures quote is unusable it carries the
// same status instead of a figure.
func (a *Aggregator) derive(inst fetcher.Instrument, futures fetcher.Observation) fetcher.Observation {
	name := inst.Name + ImpliedYieldSuffix

	switch futures.Status {
	case fetcher.StatusOK:
	case fetcher.StatusNoData:
		return a.record(fetcher.NoData(fetcher.SourceDerived, name, inst.Symbol, "futures quote has no data"), 0)
	default:
		return a.record(fetcher.Failed(fetcher.SourceDerived, name, inst.Symbol,
			fetcher.NewComputeError("futures quote unavailable", futures.Err)), 0)
	}

	return a.guard(fetcher.SourceDerived, name, inst.Symbol, func() fetcher.Observation {
		if a.calc == nil {
			return fetcher.Failed(fetcher.SourceDerived, name, inst.Symbol,
				fetcher.NewComputeError("no yield calculator configured", nil))
		}

		price := futures.Last.InexactFloat64()
		y, err := a.calc(price)
		if err != nil {
			return fetcher.Failed(fetcher.SourceDerived, name, inst.Symbol,
				fetcher.NewComputeError(fmt.Sprintf("implied yield at price %v", price), err))
		}

		return fetcher.Observation{
			Kind:   fetcher.SourceDerived,
			Name:   name,
			Source: inst.Symbol,
			Last:   decimal.NewFromFloat(y),
			Status: fetcher.StatusOK,
		}
	})
}

// guard runs fn, converting a panic into an error observation
func (a *Aggregator) guard(kind fetcher.SourceKind, name, source string, fn func() fetcher.Observation) (obs fetcher.Observation) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("source panicked",
				"name", name,
				"panic", r,
				"stack", string(debug.Stack()))
			obs = fetcher.Failed(kind, name, source,
				&fetcher.FetchError{Type: fetcher.ErrorTypeUnknown, Message: fmt.Sprintf("panic: %v", r)})
		}
		obs = a.record(obs, time.Since(start))
	}()

	obs = fn()
	// sources identify themselves by configuration, not by what they return
	obs.Kind, obs.Name, obs.Source = kind, name, source
	switch obs.Status {
	case fetcher.StatusOK:
	case fetcher.StatusNoData:
		if obs.Err == nil {
			obs = fetcher.NoData(kind, name, source, "source returned no figures")
		}
	default:
		obs = fetcher.Failed(kind, name, source, obs.Err)
	}
	return obs
}

func (a *Aggregator) record(obs fetcher.Observation, elapsed time.Duration) fetcher.Observation {
	attrs := []any{
		"source", string(obs.Kind),
		"name", obs.Name,
		"status", string(obs.Status),
		"elapsed", elapsed,
	}

	switch obs.Status {
	case fetcher.StatusOK:
		a.logger.Info("observation", attrs...)
	case fetcher.StatusNoData:
		a.logger.Info("observation", append(attrs, "detail", obs.Detail())...)
	default:
		a.logger.Warn("observation", append(attrs,
			"error_type", string(fetcher.TypeOf(obs.Err)),
			"detail", obs.Detail())...)
	}

	if a.recorder != nil {
		a.recorder.ObserveFetch(obs.Kind, obs.Status, elapsed)
	}
	return obs
}
