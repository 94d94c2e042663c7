package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// FileFetcher opens local paths and file:// URLs.
type FileFetcher struct{}

// Download opens the local file.
func (FileFetcher) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	path := rawURL
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, eris.Wrap(err, "parse file url")
		}
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	return f, nil
}

// Router dispatches on URL scheme: http and https to HTTP, ftp to FTP,
// file:// and bare paths to the local filesystem.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
	File Fetcher
}

// NewRouter wires the default fetchers for each scheme.
func NewRouter(httpOpts HTTPOptions, ftpOpts FTPOptions) *Router {
	return &Router{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
		File: FileFetcher{},
	}
}

// IsRemote reports whether the source must be fetched over the network.
func IsRemote(src string) bool {
	s := strings.ToLower(src)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "ftp://")
}

// Download routes the request to the fetcher for the URL's scheme.
func (r *Router) Download(ctx context.Context, src string) (io.ReadCloser, error) {
	s := strings.ToLower(src)
	var f Fetcher
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		f = r.HTTP
	case strings.HasPrefix(s, "ftp://"):
		f = r.FTP
	case strings.Contains(s, "://") && !strings.HasPrefix(s, "file://"):
		return nil, eris.Errorf("fetcher: unsupported scheme in %q", Redact(src))
	default:
		f = r.File
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: no fetcher configured for %q", Redact(src))
	}
	return f.Download(ctx, src)
}
