// Package read defines the pull-based row cursor shared by every table source
// and the decorators that apply read policies on top of it.
//
// A Read is a single-goroutine cursor:
//
//	r := read.Apply(read.Policy{SkipRows: 2, LimitRows: true, Limit: 100}, src)
//	defer r.Close()
//	for {
//		row, err := r.Next(ctx)
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		...
//	}
//
// Rows are freshly allocated on every call; the caller may keep them.
package read

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"tableread/internal/errs"
)

// Row is one record of tokens in source order.
type Row[V any] []V

// Read is a closeable cursor over rows.
type Read[V any] interface {
	// Next returns the next row. At the end of the sequence it returns io.EOF,
	// and keeps returning io.EOF on every later call. After Close it returns
	// errs.ErrUseAfterClose.
	Next(ctx context.Context) (Row[V], error)

	// Progress is a monotonically increasing measure of how far the source
	// has been consumed. Its unit is source-specific (rows, bytes).
	Progress() int64

	// MaxProgress is the value Progress reaches at the end, when known.
	MaxProgress() (int64, bool)

	// Close releases the source. It is idempotent.
	Close() error
}

// useAfterClose is the error Next returns on a closed Read.
func useAfterClose() error {
	return errs.UseAfterClosef("read: next called after close")
}

type sliceRead[V any] struct {
	rows   []Row[V]
	pos    int
	closed bool
}

// FromRows returns a Read over rows. Progress counts rows returned.
func FromRows[V any](rows []Row[V]) Read[V] {
	return &sliceRead[V]{rows: rows}
}

func (s *sliceRead[V]) Next(ctx context.Context) (Row[V], error) {
	if s.closed {
		return nil, useAfterClose()
	}
	if err := errs.CheckContext(ctx); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	src := s.rows[s.pos]
	s.pos++
	row := make(Row[V], len(src))
	copy(row, src)
	return row, nil
}

func (s *sliceRead[V]) Progress() int64 { return int64(s.pos) }

func (s *sliceRead[V]) MaxProgress() (int64, bool) { return int64(len(s.rows)), true }

func (s *sliceRead[V]) Close() error {
	s.closed = true
	return nil
}

// ForEach calls fn for every remaining row of r. It stops at the first error
// from r or fn, or once ctx is done. r is not closed.
func ForEach[V any](ctx context.Context, r Read[V], fn func(Row[V]) error) error {
	for {
		if err := errs.CheckContext(ctx); err != nil {
			return err
		}
		row, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
