package scrape

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"marketreport/internal/fetcher"
)

// Reasons reported when a page does not have the expected structure.
const (
	ReasonTableNotFound    = "table not found"
	ReasonRowNotFound      = "row not found"
	ReasonIncompleteFields = "incomplete fields"
)

// Extractor locates a yield figure in a parsed page.
type Extractor interface {
	Extract(doc *html.Node) (fetcher.Scraped, error)
}

// NewExtractor builds the extractor variant named by spec.Kind.
func NewExtractor(spec fetcher.ExtractSpec) (Extractor, error) {
	switch spec.Kind {
	case fetcher.ExtractTable, "":
		if spec.TableID == "" || spec.RowLabel == "" {
			return nil, fmt.Errorf("table extractor needs table_id and row_label")
		}
		return TableExtractor{TableID: spec.TableID, RowLabel: spec.RowLabel}, nil
	case fetcher.ExtractText:
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern: %w", err)
		}
		if re.SubexpIndex("yield") < 0 {
			return nil, fmt.Errorf("pattern must define a (?P<yield>...) group")
		}
		return TextExtractor{Pattern: re}, nil
	default:
		return nil, fmt.Errorf("unknown extractor kind %q", spec.Kind)
	}
}

// TableExtractor reads a row of the table with the given element id. The row
// is the first one whose leading cell contains RowLabel; its cells are label,
// yield, change, change percent and, optionally, the time of the last update.
type TableExtractor struct {
	TableID  string
	RowLabel string
}

// Extract implements Extractor
func (e TableExtractor) Extract(doc *html.Node) (fetcher.Scraped, error) {
	table := goquery.NewDocumentFromNode(doc).Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		return id == e.TableID
	}).First()
	if table.Length() == 0 {
		return fetcher.Scraped{}, fetcher.NewParseError(ReasonTableNotFound)
	}

	var cols []string
	table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td").Map(func(_ int, td *goquery.Selection) string {
			return strings.TrimSpace(td.Text())
		})
		if len(cells) == 0 || !strings.Contains(cells[0], e.RowLabel) {
			return true
		}
		cols = cells
		return false
	})
	if cols == nil {
		return fetcher.Scraped{}, fetcher.NewParseError(fmt.Sprintf("%s: %s", ReasonRowNotFound, e.RowLabel))
	}

	if len(cols) < 4 || cols[1] == "" || cols[2] == "" || cols[3] == "" {
		return fetcher.Scraped{}, fetcher.NewParseError(ReasonIncompleteFields)
	}

	s := fetcher.Scraped{
		Yield:     cols[1],
		Change:    cols[2],
		ChangePct: cols[3],
	}
	if len(cols) > 4 {
		s.AsOf = cols[4]
	}
	return s, nil
}

// TextExtractor matches a regular expression against the visible page text.
// Named groups yield, change, change_pct and time fill the matching fields.
type TextExtractor struct {
	Pattern *regexp.Regexp
}

// Extract implements Extractor
func (e TextExtractor) Extract(doc *html.Node) (fetcher.Scraped, error) {
	m := e.Pattern.FindStringSubmatch(visibleText(doc))
	if m == nil {
		return fetcher.Scraped{}, fetcher.NewParseError(ReasonRowNotFound)
	}

	group := func(name string) string {
		if i := e.Pattern.SubexpIndex(name); i >= 0 {
			return strings.TrimSpace(m[i])
		}
		return ""
	}

	s := fetcher.Scraped{
		Yield:     group("yield"),
		Change:    group("change"),
		ChangePct: group("change_pct"),
		AsOf:      group("time"),
	}
	if s.Yield == "" {
		return fetcher.Scraped{}, fetcher.NewParseError(ReasonIncompleteFields)
	}
	return s, nil
}

// visibleText joins the text of the document with whitespace collapsed to
// single spaces, skipping script and style content. Unlike Selection.Text,
// adjacent text nodes are separated so patterns can match across cells.
func visibleText(doc *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, " ")
}
