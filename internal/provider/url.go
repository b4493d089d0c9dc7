package provider

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/apex/log"
	"go.uber.org/multierr"

	"tableread/internal/connection"
	"tableread/internal/connection/httpfs"
	"tableread/internal/connection/localfs"
	"tableread/internal/connection/s3fs"
	"tableread/internal/connection/sftpfs"
	"tableread/internal/errs"
	"tableread/internal/location"
)

// URLDialer opens a transient connection for u and returns the name of the
// item on it.
type URLDialer func(ctx context.Context, u *url.URL) (conn connection.Connection, name string, err error)

// URLOptions configures the backends reachable through custom URLs.
type URLOptions struct {
	HTTP httpfs.Config `json:"http" mapstructure:"http"`
	S3   s3fs.Config   `json:"s3" mapstructure:"s3"`
	// SFTP supplies defaults (key file, known hosts, timeout) for sftp URLs.
	// Address, user and password come from the URL.
	SFTP sftpfs.Config `json:"sftp" mapstructure:"sftp"`

	// Dialers overrides or extends the dialers per URL scheme.
	Dialers map[string]URLDialer `json:"-" mapstructure:"-"`
	Logger  log.Interface        `json:"-" mapstructure:"-"`
}

// URLFactory resolves CustomURL locations. It shares no connection between
// providers: every provider dials its own and closes it on Close.
type URLFactory struct {
	dialers map[string]URLDialer
	logger  log.Interface

	mu        sync.Mutex
	live      map[*urlProvider]struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewURLFactory returns a factory with dialers for file, http, https, s3 and
// sftp URLs.
func NewURLFactory(opts URLOptions) *URLFactory {
	dialers := DefaultURLDialers(opts)
	for scheme, d := range opts.Dialers {
		dialers[strings.ToLower(scheme)] = d
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Log
	}
	return &URLFactory{
		dialers: dialers,
		logger:  logger,
		live:    map[*urlProvider]struct{}{},
	}
}

// DefaultURLDialers returns the built-in dialers keyed by scheme.
func DefaultURLDialers(opts URLOptions) map[string]URLDialer {
	httpDial := func(_ context.Context, u *url.URL) (connection.Connection, string, error) {
		return httpfs.New(opts.HTTP), u.String(), nil
	}
	return map[string]URLDialer{
		"file": func(_ context.Context, u *url.URL) (connection.Connection, string, error) {
			name := u.Path
			if name == "" {
				name = u.Opaque
			}
			return localfs.NewOS(), name, nil
		},
		"http":  httpDial,
		"https": httpDial,
		"s3": func(ctx context.Context, u *url.URL) (connection.Connection, string, error) {
			bucket, key, err := s3fs.ParseURL(u.String())
			if err != nil {
				return nil, "", err
			}
			fs, err := s3fs.Dial(ctx, opts.S3, bucket)
			if err != nil {
				return nil, "", err
			}
			return fs, key, nil
		},
		"sftp": func(ctx context.Context, u *url.URL) (connection.Connection, string, error) {
			cfg := opts.SFTP
			cfg.Addr = u.Host
			cfg.Root = "/"
			if u.User != nil {
				cfg.User = u.User.Username()
				if pw, ok := u.User.Password(); ok {
					cfg.Password = pw
				}
			}
			fs, err := sftpfs.Dial(ctx, cfg)
			if err != nil {
				return nil, "", err
			}
			return fs, u.Path, nil
		},
	}
}

func (f *URLFactory) Create(loc location.Location) (PathProvider, error) {
	if f.closed.Load() {
		return nil, errs.UseAfterClosef("provider: url factory closed")
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if loc.Category != location.CustomURL {
		return nil, errs.Configurationf("provider: url factory cannot serve %s", loc)
	}
	p := &urlProvider{factory: f, raw: strings.TrimSpace(loc.Path)}
	f.mu.Lock()
	f.live[p] = struct{}{}
	f.mu.Unlock()
	return p, nil
}

// Close closes the transient connections of providers that are still open.
func (f *URLFactory) Close() error {
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		f.mu.Lock()
		live := make([]*urlProvider, 0, len(f.live))
		for p := range f.live {
			live = append(live, p)
		}
		f.mu.Unlock()
		for _, p := range live {
			f.closeErr = multierr.Append(f.closeErr, p.Close())
		}
	})
	return f.closeErr
}

func (f *URLFactory) forget(p *urlProvider) {
	f.mu.Lock()
	delete(f.live, p)
	f.mu.Unlock()
}

type urlProvider struct {
	factory *URLFactory
	raw     string

	mu     sync.Mutex
	conn   connection.Connection
	path   connection.Path
	closed bool
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.Resolution(err, "provider: malformed url %q", raw)
	}
	if u.Scheme == "" {
		return nil, errs.Resolutionf("provider: url %q has no scheme", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

func (p *urlProvider) checkLocked() error {
	if p.closed {
		return errs.UseAfterClosef("provider: %s closed", p.raw)
	}
	if p.factory.closed.Load() {
		return errs.UseAfterClosef("provider: url factory closed")
	}
	return nil
}

func (p *urlProvider) Path(ctx context.Context) (connection.Path, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return connection.Path{}, err
	}
	if err := errs.CheckContext(ctx); err != nil {
		return connection.Path{}, err
	}

	loc := location.New(location.CustomURL, "", p.raw)
	if p.conn == nil {
		u, err := parseURL(p.raw)
		if err != nil {
			return connection.Path{}, err
		}
		dial, ok := p.factory.dialers[u.Scheme]
		if !ok {
			return connection.Path{}, errs.Resolutionf("provider: unsupported url scheme %q", u.Scheme)
		}
		p.factory.logger.WithField("url", redact(u)).Debug("dialing url")
		conn, name, err := dial(ctx, u)
		if err != nil {
			if errs.KindOf(err) == errs.KindCancelled {
				return connection.Path{}, err
			}
			if ctx.Err() != nil {
				return connection.Path{}, errs.Cancelled(ctx.Err())
			}
			return connection.Path{}, errs.Resolution(err, "provider: dial %s", redact(u))
		}
		p.conn = conn
		p.path = connection.NewPath(conn, name)
	}

	return checkPath(ctx, p.path, loc)
}

func (p *urlProvider) UncheckedPath() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return "", err
	}
	u, err := parseURL(p.raw)
	if err != nil {
		return "", err
	}
	return redact(u), nil
}

func (p *urlProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	p.factory.forget(p)
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// redact hides the password of URLs that carry user info.
func redact(u *url.URL) string {
	return u.Redacted()
}
