package fetcher

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SourceKind identifies which kind of source produced an Observation.
type SourceKind string

const (
	SourceQuote   SourceKind = "quote"
	SourceScrape  SourceKind = "scrape"
	SourceDerived SourceKind = "derived"
)

// Status is the per-observation outcome tag.
type Status string

const (
	StatusOK     Status = "ok"
	StatusNoData Status = "no_data"
	StatusError  Status = "error"
)

// ErrNoData is wrapped by the error of every no-data Observation.
var ErrNoData = errors.New("no data")

// Scraped holds figures taken verbatim from a web page.
type Scraped struct {
	Yield     string
	Change    string
	ChangePct string
	AsOf      string
}

// Observation is the outcome of querying one source for one instrument or page.
// It is built once per fetch attempt and never modified afterwards.
type Observation struct {
	Kind   SourceKind
	Name   string
	Source string // provider symbol or page URL

	// Last is the most recent value. Prev is absent for scrape and derived sources.
	Last      decimal.Decimal
	Prev      decimal.NullDecimal
	Change    decimal.NullDecimal
	ChangePct decimal.NullDecimal

	Scraped Scraped

	Status Status

	// Err is non-nil iff Status is not StatusOK.
	Err error
}

// OK reports whether the observation carries usable figures.
func (o Observation) OK() bool {
	return o.Status == StatusOK
}

// Detail returns the error detail, or "" for ok observations.
func (o Observation) Detail() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// NoData builds a no-data observation carrying reason.
func NoData(kind SourceKind, name, source, reason string) Observation {
	return Observation{
		Kind:   kind,
		Name:   name,
		Source: source,
		Status: StatusNoData,
		Err:    fmt.Errorf("%w: %s", ErrNoData, reason),
	}
}

// Failed builds an error observation. A nil err is replaced with an unknown error.
func Failed(kind SourceKind, name, source string, err error) Observation {
	if err == nil {
		err = &FetchError{Type: ErrorTypeUnknown, Message: "unspecified failure"}
	}
	return Observation{
		Kind:   kind,
		Name:   name,
		Source: source,
		Status: StatusError,
		Err:    err,
	}
}
