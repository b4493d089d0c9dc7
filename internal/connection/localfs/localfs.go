// Package localfs implements connection.Connection over a filesystem: the
// local disk, a directory rooted somewhere on it, or any afero.Fs.
package localfs

import (
	"context"
	"io"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/afero"

	"tableread/internal/connection"
	"tableread/internal/errs"
)

// FS is a read-only filesystem connection. It is safe for concurrent use.
type FS struct {
	fs     afero.Fs
	root   string
	closed atomic.Bool
}

// NewOS returns a connection on the whole local disk. Names are native
// filesystem paths.
func NewOS() *FS {
	return New(afero.NewOsFs())
}

// New wraps an arbitrary afero filesystem. The filesystem is exposed
// read-only.
func New(base afero.Fs) *FS {
	return &FS{fs: afero.NewReadOnlyFs(base)}
}

// NewBasePath returns a connection rooted at dir on the local disk. Names are
// slash-separated and are resolved below dir; names escaping dir do not exist.
func NewBasePath(dir string) (*FS, error) {
	return NewRooted(afero.NewOsFs(), dir)
}

// NewRooted returns a connection rooted at dir on base. dir must exist and be
// a directory.
func NewRooted(base afero.Fs, dir string) (*FS, error) {
	fi, err := base.Stat(dir)
	if err != nil {
		return nil, errs.Resolution(err, "localfs: root %q", dir)
	}
	if !fi.IsDir() {
		return nil, errs.Resolutionf("localfs: root %q is not a directory", dir)
	}
	return &FS{
		fs:   afero.NewReadOnlyFs(afero.NewBasePathFs(base, dir)),
		root: dir,
	}, nil
}

func (f *FS) Scheme() string { return "file" }

func (f *FS) name(n string) string {
	if f.root == "" {
		return n
	}
	return filepath.FromSlash(n)
}

func (f *FS) check(ctx context.Context) error {
	if err := errs.CheckContext(ctx); err != nil {
		return err
	}
	if f.closed.Load() {
		return errs.UseAfterClosef("localfs: connection closed")
	}
	return nil
}

// Stat implements connection.Connection.
func (f *FS) Stat(ctx context.Context, name string) (connection.FileInfo, error) {
	if err := f.check(ctx); err != nil {
		return connection.FileInfo{}, err
	}
	fi, err := f.fs.Stat(f.name(name))
	if err != nil {
		return connection.FileInfo{}, err
	}
	return connection.FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}, nil
}

// Open implements connection.Connection.
func (f *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := f.check(ctx); err != nil {
		return nil, err
	}
	fd, err := f.fs.Open(f.name(name))
	if err != nil {
		return nil, err
	}
	return fd, nil
}

// Close marks the connection closed. Nothing else is held open.
func (f *FS) Close() error {
	f.closed.Store(true)
	return nil
}
