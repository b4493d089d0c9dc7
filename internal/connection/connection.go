// Package connection defines the live storage handles that resolved paths
// point into.
//
// A Connection is opened by whoever needs it (a resolver, a mountpoint
// registry, a URL provider or the caller itself) and is closed by that same
// owner. Paths never close the connection they reference.
package connection

import (
	"context"
	"io"
	"io/fs"
	"reflect"
	"time"

	"github.com/pkg/errors"
)

// Connection is a live handle on one storage backend.
//
// Implementations must report missing items with an error satisfying
// errors.Is(err, fs.ErrNotExist).
type Connection interface {
	// Scheme names the backend, e.g. "file", "sftp", "hub", "https", "s3".
	Scheme() string
	// Stat returns metadata for name. It may perform a blocking round trip.
	Stat(ctx context.Context, name string) (FileInfo, error)
	// Open opens name for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Close releases the connection.
	Close() error
}

// FileInfo is the backend-independent metadata of one item.
type FileInfo struct {
	Name    string
	Size    int64 // -1 when unknown
	ModTime time.Time
	IsDir   bool
}

// Path is a resolved path: a name on a specific connection. A path returned
// by a provider also carries the metadata seen when it was checked.
type Path struct {
	conn Connection
	name string

	info    FileInfo
	hasInfo bool
}

// NewPath binds name to c.
func NewPath(c Connection, name string) Path {
	return Path{conn: c, name: name}
}

// Name is the backend-specific name of the item.
func (p Path) Name() string { return p.name }

// WithInfo returns a copy of p carrying fi.
func (p Path) WithInfo(fi FileInfo) Path {
	p.info, p.hasInfo = fi, true
	return p
}

// Info returns the metadata recorded by WithInfo, if any. Unlike Stat it
// never touches the connection.
func (p Path) Info() (FileInfo, bool) { return p.info, p.hasInfo }

func (p Path) String() string {
	if p.conn == nil {
		return p.name
	}
	return p.conn.Scheme() + ":" + p.name
}

// Stat returns metadata for the path.
func (p Path) Stat(ctx context.Context) (FileInfo, error) {
	if p.conn == nil {
		return FileInfo{}, errors.New("connection: path has no connection")
	}
	return p.conn.Stat(ctx, p.name)
}

// Open opens the path for reading.
func (p Path) Open(ctx context.Context) (io.ReadCloser, error) {
	if p.conn == nil {
		return nil, errors.New("connection: path has no connection")
	}
	return p.conn.Open(ctx, p.name)
}

// IsNotExist reports whether err means the item does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// NotExist returns an error for a missing name that satisfies IsNotExist.
func NotExist(scheme, name string) error {
	return &fs.PathError{Op: scheme + " stat", Path: name, Err: fs.ErrNotExist}
}

// Unowned wraps c so that Close is a no-op. The resolver wraps connections
// supplied by a caller with it, so closing a Connected factory leaves them
// open.
func Unowned(c Connection) Connection {
	return unowned{c}
}

// IsNil reports whether c is nil or an interface holding a nil pointer, map,
// func or channel.
func IsNil(c Connection) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

type unowned struct{ Connection }

func (unowned) Close() error { return nil }
