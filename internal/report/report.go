// Package report renders a report table as the HTML document that is mailed
// or written to disk.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"marketreport/internal/fetcher"
	"marketreport/internal/format"
)

// DefaultTimezone is the zone report timestamps are shown in
const DefaultTimezone = "America/New_York"

// TimestampLayout is the timestamp shown in the heading and footer
const TimestampLayout = "2006-01-02 15:04 MST"

//go:embed report.html.tmpl
var documentTemplate string

var tmpl = template.Must(template.New("report").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(documentTemplate))

// Renderer turns rows into HTML
type Renderer struct {
	title    string
	location *time.Location
	sources  []string
}

// New creates a Renderer. An empty timezone selects DefaultTimezone.
func New(title, timezone string, sources []string) (*Renderer, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return &Renderer{title: title, location: loc, sources: sources}, nil
}

// Location returns the zone timestamps are rendered in
func (r *Renderer) Location() *time.Location {
	return r.location
}

type viewRow struct {
	format.Row
	RowClass    string
	ChangeClass string
}

type view struct {
	Title     string
	Timestamp string
	Rows      []viewRow
	Sources   []string
}

// Render writes the document for rows generated at the given time
func (r *Renderer) Render(w io.Writer, rows []format.Row, generatedAt time.Time) error {
	v := view{
		Title:     r.title,
		Timestamp: generatedAt.In(r.location).Format(TimestampLayout),
		Rows:      make([]viewRow, 0, len(rows)),
		Sources:   r.sources,
	}
	for _, row := range rows {
		v.Rows = append(v.Rows, viewRow{
			Row:         row,
			RowClass:    rowClass(row),
			ChangeClass: changeClass(row),
		})
	}

	if err := tmpl.Execute(w, v); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}

// HTML renders into a string
func (r *Renderer) HTML(rows []format.Row, generatedAt time.Time) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, rows, generatedAt); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func rowClass(row format.Row) string {
	switch {
	case row.Status != fetcher.StatusOK:
		return "unavailable"
	case row.Kind == fetcher.SourceDerived:
		return "derived"
	}
	return ""
}

// changeClass colours a row by the sign of its Change cell. Cells that are not
// numbers, such as N/A or Error, get no colour.
func changeClass(row format.Row) string {
	cell := strings.NewReplacer(",", "", "%", "", "+", "").Replace(strings.TrimSpace(row.Change))
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return ""
	}
	switch d.Sign() {
	case 1:
		return "positive"
	case -1:
		return "negative"
	}
	return ""
}
