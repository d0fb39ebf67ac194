// Package format turns observations into display rows.
package format

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"marketreport/internal/fetcher"
)

// Display markers for cells without a figure
const (
	MarkError          = "Error"
	MarkNoData         = "No Data"
	MarkNotApplicable  = "N/A"
	percentSuffix      = "%"
	yieldDecimalPlaces = 2
)

// Row is one line of the report
type Row struct {
	Asset     string
	Last      string
	Change    string
	ChangePct string

	Kind   fetcher.SourceKind
	Status fetcher.Status
	Detail string
}

// Cells returns the asset label followed by the three display strings
func (r Row) Cells() []string {
	return []string{r.Asset, r.Last, r.Change, r.ChangePct}
}

// Format renders obs with the display rules of category. It depends on
// nothing but its arguments.
func Format(category fetcher.Category, obs fetcher.Observation) Row {
	row := Row{
		Asset:  obs.Name,
		Kind:   obs.Kind,
		Status: obs.Status,
		Detail: obs.Detail(),
	}

	switch obs.Status {
	case fetcher.StatusOK:
	case fetcher.StatusNoData:
		row.Last, row.Change, row.ChangePct = MarkNoData, MarkNotApplicable, MarkNotApplicable
		return row
	default:
		row.Last, row.Change, row.ChangePct = MarkError, MarkError, MarkError
		return row
	}

	switch category {
	case fetcher.CategoryYield:
		row.Last, row.Change, row.ChangePct = yieldCells(obs)
	case fetcher.CategoryIndex:
		row.Last = grouped(obs.Last)
		row.Change = nullable(obs.Change, grouped)
		row.ChangePct = percent(obs.ChangePct)
	case fetcher.CategoryFX:
		row.Last = obs.Last.StringFixed(4)
		row.Change = nullable(obs.Change, func(d decimal.Decimal) string { return d.StringFixed(4) })
		row.ChangePct = percent(obs.ChangePct)
	default:
		row.Last = obs.Last.StringFixed(2)
		row.Change = nullable(obs.Change, func(d decimal.Decimal) string { return d.StringFixed(2) })
		row.ChangePct = percent(obs.ChangePct)
	}

	return row
}

func yieldCells(obs fetcher.Observation) (last, change, changePct string) {
	s := obs.Scraped

	last = s.Yield
	if last == "" {
		last = obs.Last.StringFixed(yieldDecimalPlaces)
	}
	if !strings.HasSuffix(last, percentSuffix) {
		last += percentSuffix
	}

	change = s.Change
	if change == "" {
		change = nullable(obs.Change, func(d decimal.Decimal) string { return d.StringFixed(yieldDecimalPlaces) })
	}

	changePct = s.ChangePct
	if changePct == "" {
		changePct = percent(obs.ChangePct)
	}

	return last, change, changePct
}

// grouped renders d with thousands separators and two decimal places
func grouped(d decimal.Decimal) string {
	return message.NewPrinter(language.English).Sprintf("%.2f", d.Round(2).InexactFloat64())
}

func percent(d decimal.NullDecimal) string {
	return nullable(d, func(d decimal.Decimal) string { return d.StringFixed(2) + percentSuffix })
}

func nullable(d decimal.NullDecimal, render func(decimal.Decimal) string) string {
	if !d.Valid {
		return MarkNotApplicable
	}
	return render(d.Decimal)
}
