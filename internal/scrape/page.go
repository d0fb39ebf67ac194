// Package scrape extracts government bond yields from public web pages.
package scrape

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"resty.dev/v3"

	"marketreport/internal/fetcher"
	"marketreport/internal/ratelimit"
)

// YieldFetcher downloads yield pages and runs the page's extractor on them
type YieldFetcher struct {
	client *resty.Client
}

// NewYieldFetcher creates a new yield page fetcher
func NewYieldFetcher(opts fetcher.ClientOptions) *YieldFetcher {
	return &YieldFetcher{
		client: fetcher.NewHTTPClient("", opts).SetHeader("Accept", "text/html"),
	}
}

// Document retrieves and parses the page at url
func (f *YieldFetcher) Document(ctx context.Context, url string) (*html.Node, error) {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIScrape); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)

	if err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(resp.StatusCode())
	}

	doc, err := html.Parse(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fetcher.NewParseError(fmt.Sprintf("parse html: %v", err))
	}

	return doc, nil
}

// Yield implements fetcher.YieldFetcher
func (f *YieldFetcher) Yield(ctx context.Context, page fetcher.Page) fetcher.Observation {
	extractor, err := NewExtractor(page.Extract)
	if err != nil {
		return fetcher.Failed(fetcher.SourceScrape, page.Name, page.URL,
			fetcher.NewParseError(fmt.Sprintf("extractor: %v", err)))
	}

	doc, err := f.Document(ctx, page.URL)
	if err != nil {
		return fetcher.Failed(fetcher.SourceScrape, page.Name, page.URL, err)
	}

	scraped, err := extractor.Extract(doc)
	if err != nil {
		return fetcher.Failed(fetcher.SourceScrape, page.Name, page.URL, err)
	}

	return fetcher.Observation{
		Kind:    fetcher.SourceScrape,
		Name:    page.Name,
		Source:  page.URL,
		Scraped: scraped,
		Status:  fetcher.StatusOK,
	}
}
