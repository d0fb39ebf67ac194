package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"marketreport/internal/fetcher"
)

const bondTable = `<html><body>
<table id="te-bond-table">
  <thead><tr><th>Bond</th><th>Yield</th><th>Day</th><th>Weekly</th><th>Date</th></tr></thead>
  <tbody>
    <tr><td><a href="/uk/2y">GB 2Y</a></td><td>4.012</td><td>-0.020</td><td>-0.50%</td><td>Jun/07</td></tr>
    <tr><td><a href="/uk/10y"><b>GB 10Y</b></a></td><td> 4.236 </td><td>0.031</td><td>0.74%</td><td>Jun/07</td></tr>
  </tbody>
</table>
</body></html>`

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func TestNewExtractor(t *testing.T) {
	tests := []struct {
		name    string
		spec    fetcher.ExtractSpec
		want    any
		wantErr bool
	}{
		{"table", fetcher.ExtractSpec{Kind: "table", TableID: "t", RowLabel: "10Y"}, TableExtractor{}, false},
		{"default kind is table", fetcher.ExtractSpec{TableID: "t", RowLabel: "10Y"}, TableExtractor{}, false},
		{"table without id", fetcher.ExtractSpec{Kind: "table", RowLabel: "10Y"}, nil, true},
		{"text", fetcher.ExtractSpec{Kind: "text", Pattern: `(?P<yield>\d+\.\d+)%`}, TextExtractor{}, false},
		{"text without yield group", fetcher.ExtractSpec{Kind: "text", Pattern: `\d+`}, nil, true},
		{"text with bad pattern", fetcher.ExtractSpec{Kind: "text", Pattern: `(`}, nil, true},
		{"unknown kind", fetcher.ExtractSpec{Kind: "xpath"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := NewExtractor(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, ex)
		})
	}
}

func TestTableExtractor(t *testing.T) {
	ex := TableExtractor{TableID: "te-bond-table", RowLabel: "10Y"}

	got, err := ex.Extract(parse(t, bondTable))

	require.NoError(t, err)
	assert.Equal(t, fetcher.Scraped{Yield: "4.236", Change: "0.031", ChangePct: "0.74%", AsOf: "Jun/07"}, got)
}

func TestTableExtractor_Failures(t *testing.T) {
	tests := []struct {
		name   string
		page   string
		reason string
	}{
		{
			name:   "table missing",
			page:   `<html><body><table id="other"><tr><td>10Y</td></tr></table></body></html>`,
			reason: ReasonTableNotFound,
		},
		{
			name:   "row missing",
			page:   `<table id="te-bond-table"><tr><td>GB 2Y</td><td>4.0</td><td>0.1</td><td>1%</td></tr></table>`,
			reason: ReasonRowNotFound,
		},
		{
			name:   "too few cells",
			page:   `<table id="te-bond-table"><tr><td>GB 10Y</td><td>4.2</td></tr></table>`,
			reason: ReasonIncompleteFields,
		},
		{
			name:   "empty change",
			page:   `<table id="te-bond-table"><tr><td>GB 10Y</td><td>4.2</td><td></td><td>1%</td></tr></table>`,
			reason: ReasonIncompleteFields,
		},
	}

	ex := TableExtractor{TableID: "te-bond-table", RowLabel: "10Y"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.Extract(parse(t, tt.page))
			require.Error(t, err)
			assert.Equal(t, fetcher.ErrorTypeParse, fetcher.TypeOf(err))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestTableExtractor_WithoutTime(t *testing.T) {
	page := `<table id="y"><tr><td>DE 10Y</td><td>2.55</td><td>-0.01</td><td>-0.39%</td></tr></table>`

	got, err := TableExtractor{TableID: "y", RowLabel: "10Y"}.Extract(parse(t, page))

	require.NoError(t, err)
	assert.Equal(t, "2.55", got.Yield)
	assert.Empty(t, got.AsOf)
}

func TestTableExtractor_SelectsByIDAndFirstRow(t *testing.T) {
	page := `<html><body>
<table id="te-bond-table-other"><tr><td>GB 10Y</td><td>9.99</td><td>9.99</td><td>9.99%</td></tr></table>
<table class="wide" id="te-bond-table">
  <tr><th>Bond</th><th>Yield</th></tr>
  <tr><td><span>GB</span> <em>10Y</em></td><td><span> 4.236</span></td><td>0.031</td><td>0.74%</td></tr>
  <tr><td>GB 10Y Linker</td><td>0.812</td><td>0.004</td><td>0.49%</td></tr>
</table></body></html>`

	got, err := TableExtractor{TableID: "te-bond-table", RowLabel: "10Y"}.Extract(parse(t, page))

	require.NoError(t, err)
	assert.Equal(t, fetcher.Scraped{Yield: "4.236", Change: "0.031", ChangePct: "0.74%"}, got)
}

func TestTextExtractor(t *testing.T) {
	page := `<html><head><script>var y = "9.99%";</script></head><body>
	<p>The yield on the <b>Germany 10Y</b> Bund rose to 2.551% on Friday,
	a change of 0.012 points (0.47%).</p></body></html>`

	ex, err := NewExtractor(fetcher.ExtractSpec{
		Kind:    "text",
		Pattern: `10Y.*?(?P<yield>\d+\.\d+)%.*?change of (?P<change>-?\d+\.\d+) points \((?P<change_pct>-?\d+\.\d+%)\)`,
	})
	require.NoError(t, err)

	got, err := ex.Extract(parse(t, page))

	require.NoError(t, err)
	assert.Equal(t, "2.551", got.Yield)
	assert.Equal(t, "0.012", got.Change)
	assert.Equal(t, "0.47%", got.ChangePct)
	assert.Empty(t, got.AsOf)
}

func TestTextExtractor_NoMatch(t *testing.T) {
	ex, err := NewExtractor(fetcher.ExtractSpec{Kind: "text", Pattern: `10Y (?P<yield>\d+\.\d+)%`})
	require.NoError(t, err)

	_, err = ex.Extract(parse(t, `<p>Access denied</p>`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), ReasonRowNotFound)
}
