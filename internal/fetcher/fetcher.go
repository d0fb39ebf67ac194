package fetcher

import (
	"context"
	"fmt"
	"strings"
)

// Category selects the display rules applied to an instrument's figures.
type Category string

const (
	// CategoryIndex covers large-number indices, equity futures and gold
	CategoryIndex Category = "index"
	// CategoryFX covers currency pairs
	CategoryFX Category = "fx"
	// CategoryCommodity covers futures and commodities that are neither FX nor index
	CategoryCommodity Category = "commodity"
	// CategoryYield covers scraped and derived yields
	CategoryYield Category = "yield"
)

// ParseCategory converts a configuration string into a Category.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryIndex, CategoryFX, CategoryCommodity, CategoryYield:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// Instrument is a quoted instrument as defined in configuration.
type Instrument struct {
	Name     string
	Symbol   string
	Category Category

	// BondFutures marks the instrument whose last close feeds the implied yield row.
	BondFutures bool
}

// Extractor kinds understood by the yield scraper.
const (
	ExtractTable = "table"
	ExtractText  = "text"
)

// ExtractSpec describes how a yield figure is located on a page.
type ExtractSpec struct {
	Kind     string
	TableID  string
	RowLabel string
	Pattern  string
}

// Page is a yield page as defined in configuration.
type Page struct {
	Name    string
	URL     string
	Extract ExtractSpec
}

// QuoteFetcher retrieves the last two session closes for an instrument.
// Implementations never return errors; failures are reported through the
// Observation status.
type QuoteFetcher interface {
	Quote(ctx context.Context, inst Instrument) Observation
}

// YieldFetcher retrieves a yield figure from a web page.
type YieldFetcher interface {
	Yield(ctx context.Context, page Page) Observation
}
