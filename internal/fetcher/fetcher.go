package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote datasets.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into the given path and returns the
	// byte count written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
