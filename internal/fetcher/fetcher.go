// Package fetcher retrieves remote and local sources (HTTP, FTP, file paths)
// and parses the tabular and archive formats the pipeline consumes.
package fetcher

import (
	"context"
	"io"
	"net/url"
)

// Fetcher opens a source for reading.
type Fetcher interface {
	// Download fetches the URL and returns the response body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Redact strips credentials (the Census "key" parameter and URL userinfo)
// from a URL so it can be logged.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = nil
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
