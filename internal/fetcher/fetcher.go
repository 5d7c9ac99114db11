// Package fetcher downloads and parses the remote datasets the discovery
// run depends on: the Valor 1000 JSON export and the CVM FRE ZIP/CSVs.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
