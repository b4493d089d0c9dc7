// Package httpfs implements connection.Connection for http and https URLs.
// Names are absolute URLs; one FS serves any host.
package httpfs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync/atomic"

	"tableread/internal/connection"
	"tableread/internal/errs"
)

// FS is a read-only connection backed by a retrying HTTP client.
type FS struct {
	client *Client
	closed atomic.Bool
}

// New returns an FS using a client built from cfg.
func New(cfg Config) *FS {
	return &FS{client: NewClient(cfg)}
}

// NewWithClient returns an FS around an existing client.
func NewWithClient(c *Client) *FS {
	return &FS{client: c}
}

func (f *FS) Scheme() string { return "http" }

// Stat issues a HEAD request. Servers that reject HEAD are probed with a
// one-byte range GET instead. Size is -1 when the server does not report it.
func (f *FS) Stat(ctx context.Context, name string) (connection.FileInfo, error) {
	if err := f.check(ctx, name); err != nil {
		return connection.FileInfo{}, err
	}

	resp, err := f.client.Head(ctx, name, nil)
	if err != nil {
		return connection.FileInfo{}, f.requestErr(ctx, err, name)
	}
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp, err = f.client.Get(ctx, name, http.Header{"Range": []string{"bytes=0-0"}})
		if err != nil {
			return connection.FileInfo{}, f.requestErr(ctx, err, name)
		}
		_ = resp.Body.Close()
	}

	if err := statusErr(resp, name); err != nil {
		return connection.FileInfo{}, err
	}

	info := connection.FileInfo{
		Name: baseName(name),
		Size: resp.ContentLength,
	}
	if resp.StatusCode == http.StatusPartialContent {
		// The range response length is not the object length.
		info.Size = -1
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.ModTime = t
		}
	}
	return info, nil
}

// Open issues a GET and returns the response body.
func (f *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := f.check(ctx, name); err != nil {
		return nil, err
	}

	resp, err := f.client.Get(ctx, name, nil)
	if err != nil {
		return nil, f.requestErr(ctx, err, name)
	}
	if err := statusErr(resp, name); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// Close releases idle connections. It is idempotent.
func (f *FS) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.client.CloseIdleConnections()
	return nil
}

func (f *FS) check(ctx context.Context, name string) error {
	if err := errs.CheckContext(ctx); err != nil {
		return err
	}
	if f.closed.Load() {
		return errs.UseAfterClosef("httpfs: connection closed")
	}
	if _, err := ParseURL(name); err != nil {
		return err
	}
	return nil
}

func (f *FS) requestErr(ctx context.Context, err error, name string) error {
	if ctx.Err() != nil {
		return errs.Cancelled(ctx.Err())
	}
	return errs.Resolution(err, "httpfs: request %s", name)
}

func statusErr(resp *http.Response, name string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return connection.NotExist("http", name)
	case resp.StatusCode >= 400:
		return errs.Resolutionf("httpfs: %s returned status %d", name, resp.StatusCode)
	}
	return nil
}

// ParseURL parses raw and requires an http or https scheme and a host.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.Configurationf("httpfs: invalid url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errs.Configurationf("httpfs: unsupported scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return nil, errs.Configurationf("httpfs: missing host in %q", raw)
	}
	return u, nil
}

// baseName returns the last path segment of a URL, or the host when the path
// is empty.
func baseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	b := path.Base(u.Path)
	if b == "/" || b == "." || b == "" {
		return u.Host
	}
	if unescaped, err := url.PathUnescape(b); err == nil {
		return unescaped
	}
	return b
}

var _ connection.Connection = (*FS)(nil)
