// Package scrape fetches institutional pages as markdown for the
// summarization stage.
package scrape

import (
	"context"
)

// Result is one scraped page.
type Result struct {
	URL      string
	Title    string
	Markdown string
	Source   string // scraper that produced the page, e.g. "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
