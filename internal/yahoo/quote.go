// Package yahoo fetches session closes from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"marketreport/internal/fetcher"
	"marketreport/internal/ratelimit"
)

const (
	// DefaultBaseURL is the production chart API host
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	// DefaultRange covers a long weekend so that two sessions are normally present
	DefaultRange = "5d"

	chartPath = "/v8/finance/chart/{symbol}"
)

// ChartResponse represents the chart API response
type ChartResponse struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  *ChartError   `json:"error"`
	} `json:"chart"`
}

// ChartResult holds the series for one symbol
type ChartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			// Closes are null for sessions without a settlement
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// ChartError is the error object returned alongside a null result
type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// QuoteFetcher fetches the last two session closes for an instrument
type QuoteFetcher struct {
	client *resty.Client
	rng    string
}

// NewQuoteFetcher creates a new quote fetcher against baseURL
func NewQuoteFetcher(baseURL, rng string, opts fetcher.ClientOptions) *QuoteFetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if rng == "" {
		rng = DefaultRange
	}

	return &QuoteFetcher{
		client: fetcher.NewHTTPClient(baseURL, opts).SetHeader("Accept", "application/json"),
		rng:    rng,
	}
}

// Closes retrieves the non-null daily closes for symbol, oldest first
func (f *QuoteFetcher) Closes(ctx context.Context, symbol string) ([]float64, error) {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIYahoo); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	var result ChartResponse

	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"range":    f.rng,
			"interval": "1d",
		}).
		SetResult(&result).
		Get(chartPath)

	if err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(resp.StatusCode())
	}

	if e := result.Chart.Error; e != nil {
		return nil, fetcher.NewProviderError(fmt.Sprintf("%s: %s", e.Code, e.Description))
	}

	var closes []float64
	for _, r := range result.Chart.Result {
		for _, q := range r.Indicators.Quote {
			for _, c := range q.Close {
				if c != nil {
					closes = append(closes, *c)
				}
			}
		}
	}

	return closes, nil
}

// Quote implements fetcher.QuoteFetcher
func (f *QuoteFetcher) Quote(ctx context.Context, inst fetcher.Instrument) fetcher.Observation {
	closes, err := f.Closes(ctx, inst.Symbol)
	if err != nil {
		return fetcher.Failed(fetcher.SourceQuote, inst.Name, inst.Symbol, err)
	}

	if len(closes) < 2 {
		slog.Debug("not enough closes", "symbol", inst.Symbol, "closes", len(closes))
		return fetcher.NoData(fetcher.SourceQuote, inst.Name, inst.Symbol,
			fmt.Sprintf("%d session closes returned, need 2", len(closes)))
	}

	last := decimal.NewFromFloat(closes[len(closes)-1])
	prev := decimal.NewFromFloat(closes[len(closes)-2])
	change := last.Sub(prev)

	obs := fetcher.Observation{
		Kind:   fetcher.SourceQuote,
		Name:   inst.Name,
		Source: inst.Symbol,
		Last:   last,
		Prev:   decimal.NewNullDecimal(prev),
		Change: decimal.NewNullDecimal(change),
		Status: fetcher.StatusOK,
	}
	if !prev.IsZero() {
		obs.ChangePct = decimal.NewNullDecimal(change.Div(prev).Mul(decimal.NewFromInt(100)))
	}

	return obs
}
