// Package hubfs implements connection.Connection over the hub REST API. One
// connection is bound to one space.
//
// API used:
//
//	GET {base}/spaces/{space}                    200 when the space exists
//	GET {base}/spaces/{space}/items?path={path}  item metadata (JSON)
//	GET {base}/spaces/{space}/data?path={path}   item bytes
package hubfs

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"tableread/internal/connection"
	"tableread/internal/errs"
)

// Config describes the hub endpoint.
type Config struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Token      string        `json:"token" mapstructure:"token"`
	// Timeout bounds the wait for response headers. Defaults to 30s.
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	RetryCount int           `json:"retry_count" mapstructure:"retry_count"`
}

// Item is the metadata document returned by the items endpoint.
type Item struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Type     string    `json:"type"` // "file" or "directory"
}

// FS is a connection to one hub space. resty clients are safe for concurrent
// use.
type FS struct {
	client *resty.Client
	space  string
	closed atomic.Bool
}

// Dial creates a client for cfg and checks that space exists. A missing space
// is a resolution error.
func Dial(ctx context.Context, cfg Config, space string) (*FS, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errs.Configurationf("hubfs: base_url must not be empty")
	}
	if strings.TrimSpace(space) == "" {
		return nil, errs.Configurationf("hubfs: space must not be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// The timeout bounds the wait for response headers only: data bodies are
	// streamed to row readers for as long as they take.
	client := resty.New().
		SetTransport(&http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
		}).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	f := &FS{client: client, space: space}

	resp, err := client.R().
		SetContext(ctx).
		SetPathParam("space", space).
		Get("/spaces/{space}")
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Cancelled(ctx.Err())
		}
		return nil, errs.Resolution(err, "hubfs: reach hub for space %q", space)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, errs.Resolutionf("hubfs: space %q not found", space)
	case resp.IsError():
		return nil, errs.Resolutionf("hubfs: space %q: %s", space, resp.Status())
	}
	return f, nil
}

func (f *FS) Scheme() string { return "hub" }

// Space is the space id the connection is bound to.
func (f *FS) Space() string { return f.space }

func (f *FS) check(ctx context.Context) error {
	if err := errs.CheckContext(ctx); err != nil {
		return err
	}
	if f.closed.Load() {
		return errs.UseAfterClosef("hubfs: connection closed")
	}
	return nil
}

func cleanName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// Stat implements connection.Connection.
func (f *FS) Stat(ctx context.Context, name string) (connection.FileInfo, error) {
	if err := f.check(ctx); err != nil {
		return connection.FileInfo{}, err
	}
	var item Item
	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("space", f.space).
		SetQueryParam("path", cleanName(name)).
		SetResult(&item).
		Get("/spaces/{space}/items")
	if err != nil {
		return connection.FileInfo{}, errors.Wrapf(contextErr(ctx, err), "hubfs: stat %s", name)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return connection.FileInfo{}, connection.NotExist("hub", name)
	case resp.IsError():
		return connection.FileInfo{}, errors.Errorf("hubfs: stat %s: %s", name, resp.Status())
	}
	if item.Name == "" {
		item.Name = path.Base(cleanName(name))
	}
	return connection.FileInfo{
		Name:    item.Name,
		Size:    item.Size,
		ModTime: item.Modified,
		IsDir:   item.Type == "directory",
	}, nil
}

// Open implements connection.Connection. The returned body must be closed by
// the caller.
func (f *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := f.check(ctx); err != nil {
		return nil, err
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "application/octet-stream").
		SetPathParam("space", f.space).
		SetQueryParam("path", cleanName(name)).
		Get("/spaces/{space}/data")
	if err != nil {
		return nil, errors.Wrapf(contextErr(ctx, err), "hubfs: open %s", name)
	}
	body := resp.RawBody()
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		_ = body.Close()
		return nil, connection.NotExist("hub", name)
	case resp.IsError():
		_ = body.Close()
		return nil, errors.Errorf("hubfs: open %s: %s", name, resp.Status())
	}
	return body, nil
}

// Close drops idle keep-alive connections. It is idempotent.
func (f *FS) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.client.GetClient().CloseIdleConnections()
	return nil
}

// contextErr prefers the context's error when the request failed because the
// context ended.
func contextErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errs.Cancelled(ctx.Err())
	}
	return err
}
