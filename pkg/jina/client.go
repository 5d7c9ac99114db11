// Package jina provides a client for the Jina AI Reader and Search APIs.
// Reader turns a page URL into markdown; Search backs the evidence
// aggregator's categorized web queries.
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Jina operations used by the discovery pipeline.
type Client interface {
	// Read fetches a URL via Jina Reader and returns the markdown content.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search performs a web search and returns ranked results.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// ReadResponse is the parsed Reader API response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the content from the Reader.
type ReadData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchResponse is the parsed Search API response.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is a single ranked search hit. Description carries the
// result snippet.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	siteFilter string
	maxResults int
}

// WithSiteFilter restricts search results to a specific domain
// (used by the CNPJ retry query restricted to gov.br).
func WithSiteFilter(domain string) SearchOption {
	return func(o *searchOpts) {
		o.siteFilter = domain
	}
}

// WithMaxResults caps the number of results returned.
func WithMaxResults(n int) SearchOption {
	return func(o *searchOpts) {
		o.maxResults = n
	}
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom Reader base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithSearchBaseURL sets a custom Search base URL (for testing).
func WithSearchBaseURL(url string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	http          *http.Client
}

// NewClient creates a new Jina client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "jina: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("jina: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, targetURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", "markdown")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: request failed")
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("jina: unexpected status %d: %s", statusCode, string(body))
	}

	var result ReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal response")
	}

	return &result, nil
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	so := &searchOpts{}
	for _, opt := range opts {
		opt(so)
	}

	reqURL := fmt.Sprintf("%s/%s", c.searchBaseURL, url.QueryEscape(query))

	params := url.Values{}
	if so.siteFilter != "" {
		params.Set("site", so.siteFilter)
	}
	if so.maxResults > 0 {
		params.Set("num", strconv.Itoa(so.maxResults))
	}
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create search request")
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search request failed")
	}

	// Jina returns 422 when no results are available for the query.
	// Treat this as empty results rather than an error.
	if statusCode == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: 422}, nil
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("jina: search unexpected status %d: %s", statusCode, string(body))
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}

	return &result, nil
}
