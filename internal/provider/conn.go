package provider

import (
	"context"
	"sync"
	"sync/atomic"

	"tableread/internal/connection"
	"tableread/internal/errs"
	"tableread/internal/location"
)

// ConnFactory mints providers whose paths live on a single connection. It
// serves Local, Relative, Mountpoint, HubSpace and Connected locations.
type ConnFactory struct {
	category  location.Category
	specifier string
	conn      connection.Connection

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConnFactory returns a factory for locations of category and specifier on
// conn. The factory closes conn on Close; wrap a borrowed connection with
// connection.Unowned.
func NewConnFactory(category location.Category, specifier string, conn connection.Connection) *ConnFactory {
	return &ConnFactory{
		category:  category,
		specifier: specifier,
		conn:      conn,
	}
}

func (f *ConnFactory) Create(loc location.Location) (PathProvider, error) {
	if f.closed.Load() {
		return nil, errs.UseAfterClosef("provider: factory for %s closed", f.category)
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if loc.Category != f.category {
		return nil, errs.Configurationf("provider: %s factory cannot serve %s", f.category, loc)
	}
	if f.category.RequiresSpecifier() && loc.Specifier != f.specifier {
		return nil, errs.Configurationf("provider: %s(%s) factory cannot serve %s", f.category, f.specifier, loc)
	}
	return &connProvider{factory: f, loc: loc}, nil
}

func (f *ConnFactory) Close() error {
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		if f.conn != nil {
			f.closeErr = f.conn.Close()
		}
	})
	return f.closeErr
}

type connProvider struct {
	factory *ConnFactory
	loc     location.Location
	closed  atomic.Bool
}

func (p *connProvider) check() error {
	if p.closed.Load() {
		return errs.UseAfterClosef("provider: %s closed", p.loc)
	}
	if p.factory.closed.Load() {
		return errs.UseAfterClosef("provider: factory for %s closed", p.loc)
	}
	return nil
}

func (p *connProvider) Path(ctx context.Context) (connection.Path, error) {
	if err := p.check(); err != nil {
		return connection.Path{}, err
	}
	if err := errs.CheckContext(ctx); err != nil {
		return connection.Path{}, err
	}
	return checkPath(ctx, connection.NewPath(p.factory.conn, p.loc.Path), p.loc)
}

func (p *connProvider) UncheckedPath() (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	return connection.NewPath(p.factory.conn, p.loc.Path).String(), nil
}

func (p *connProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// checkPath stats path and maps failures onto resolution errors. The returned
// path carries the stat result.
func checkPath(ctx context.Context, path connection.Path, loc location.Location) (connection.Path, error) {
	info, err := path.Stat(ctx)
	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindCancelled, errs.KindUseAfterClose:
			return connection.Path{}, err
		}
		if ctx.Err() != nil {
			return connection.Path{}, errs.Cancelled(ctx.Err())
		}
		if connection.IsNotExist(err) {
			return connection.Path{}, errs.Resolution(err, "provider: %s does not exist", loc)
		}
		return connection.Path{}, errs.Resolution(err, "provider: %s is not reachable", loc)
	}
	if info.IsDir {
		return connection.Path{}, errs.Resolutionf("provider: %s is a directory", loc)
	}
	return path.WithInfo(info), nil
}
