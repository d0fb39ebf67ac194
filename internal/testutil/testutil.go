package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"marketreport/internal/fetcher"
)

// MockQuoteFetcher is a mock implementation of fetcher.QuoteFetcher for testing
type MockQuoteFetcher struct {
	QuoteFunc func(ctx context.Context, inst fetcher.Instrument) fetcher.Observation

	mu    sync.Mutex
	calls []string
}

// Quote implements fetcher.QuoteFetcher
func (m *MockQuoteFetcher) Quote(ctx context.Context, inst fetcher.Instrument) fetcher.Observation {
	m.mu.Lock()
	m.calls = append(m.calls, inst.Symbol)
	m.mu.Unlock()

	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, inst)
	}
	return fetcher.NoData(fetcher.SourceQuote, inst.Name, inst.Symbol, "mock")
}

// Calls returns the symbols requested so far, in call order
func (m *MockQuoteFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockYieldFetcher is a mock implementation of fetcher.YieldFetcher for testing
type MockYieldFetcher struct {
	YieldFunc func(ctx context.Context, page fetcher.Page) fetcher.Observation
}

// Yield implements fetcher.YieldFetcher
func (m *MockYieldFetcher) Yield(ctx context.Context, page fetcher.Page) fetcher.Observation {
	if m.YieldFunc != nil {
		return m.YieldFunc(ctx, page)
	}
	return fetcher.NoData(fetcher.SourceScrape, page.Name, page.URL, "mock")
}

// Closes builds an ok quote observation from a last and previous close
func Closes(inst fetcher.Instrument, last, prev float64) fetcher.Observation {
	l, p := decimal.NewFromFloat(last), decimal.NewFromFloat(prev)
	change := l.Sub(p)
	return fetcher.Observation{
		Kind:      fetcher.SourceQuote,
		Name:      inst.Name,
		Source:    inst.Symbol,
		Last:      l,
		Prev:      decimal.NewNullDecimal(p),
		Change:    decimal.NewNullDecimal(change),
		ChangePct: decimal.NewNullDecimal(change.Div(p).Mul(decimal.NewFromInt(100))),
		Status:    fetcher.StatusOK,
	}
}

// NewMockQuoteFetcher creates a quote mock answering from a symbol table.
// Symbols without an entry report no data.
func NewMockQuoteFetcher(closes map[string][2]float64) *MockQuoteFetcher {
	return &MockQuoteFetcher{
		QuoteFunc: func(ctx context.Context, inst fetcher.Instrument) fetcher.Observation {
			c, ok := closes[inst.Symbol]
			if !ok {
				return fetcher.NoData(fetcher.SourceQuote, inst.Name, inst.Symbol, "1 session close returned, need 2")
			}
			return Closes(inst, c[0], c[1])
		},
	}
}

// Yield builds an ok scrape observation
func Yield(page fetcher.Page, yield, change, changePct string) fetcher.Observation {
	return fetcher.Observation{
		Kind:    fetcher.SourceScrape,
		Name:    page.Name,
		Source:  page.URL,
		Scraped: fetcher.Scraped{Yield: yield, Change: change, ChangePct: changePct},
		Status:  fetcher.StatusOK,
	}
}
