package read

import (
	"context"
	"fmt"
	"io"

	"tableread/internal/errs"
)

// decorator holds the one inner Read every decorator wraps.
type decorator[V any] struct {
	inner  Read[V]
	closed bool
}

func (d *decorator[V]) Progress() int64 { return d.inner.Progress() }

func (d *decorator[V]) MaxProgress() (int64, bool) { return d.inner.MaxProgress() }

// Close closes the inner Read once, then marks the decorator closed.
func (d *decorator[V]) Close() error {
	if d.closed {
		return nil
	}
	err := d.inner.Close()
	d.closed = true
	return err
}

type skipRows[V any] struct {
	decorator[V]
	remaining int64
}

// SkipRows drops the first n rows of r. The rows are pulled on the first call
// to Next; progress is passed through unchanged.
func SkipRows[V any](r Read[V], n int64) Read[V] {
	return &skipRows[V]{decorator: decorator[V]{inner: r}, remaining: n}
}

func (s *skipRows[V]) Next(ctx context.Context) (Row[V], error) {
	if s.closed {
		return nil, useAfterClose()
	}
	for s.remaining > 0 {
		if err := errs.CheckContext(ctx); err != nil {
			return nil, err
		}
		if _, err := s.inner.Next(ctx); err != nil {
			return nil, err
		}
		s.remaining--
	}
	return s.inner.Next(ctx)
}

type skipIndex[V any] struct {
	decorator[V]
	index int64
	pos   int64
}

// SkipIndex drops the row at 0-based index k. When the stream ends before k,
// nothing is dropped.
func SkipIndex[V any](r Read[V], k int64) Read[V] {
	return &skipIndex[V]{decorator: decorator[V]{inner: r}, index: k}
}

func (s *skipIndex[V]) Next(ctx context.Context) (Row[V], error) {
	if s.closed {
		return nil, useAfterClose()
	}
	if s.pos == s.index {
		if _, err := s.inner.Next(ctx); err != nil {
			return nil, err
		}
		s.pos++
	}
	row, err := s.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	s.pos++
	return row, nil
}

type limit[V any] struct {
	decorator[V]
	max   int64
	count int64
}

// Limit stops r after n rows. Once n rows were returned Next reports io.EOF
// without touching r, which stays positioned right after row n.
func Limit[V any](r Read[V], n int64) Read[V] {
	return &limit[V]{decorator: decorator[V]{inner: r}, max: n}
}

func (l *limit[V]) Next(ctx context.Context) (Row[V], error) {
	if l.closed {
		return nil, useAfterClose()
	}
	if l.count >= l.max {
		return nil, io.EOF
	}
	row, err := l.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	l.count++
	return row, nil
}

// ColumnCountError reports a row whose width differs from the expected one.
// It is always wrapped as errs.ErrIO.
type ColumnCountError struct {
	// Row is the 0-based index of the offending row among those that reached
	// the check.
	Row  int64
	Want int
	Got  int
}

func (e *ColumnCountError) Error() string {
	return fmt.Sprintf("row %d has %d columns, expected %d", e.Row, e.Got, e.Want)
}

type columnCount[V any] struct {
	decorator[V]
	width int
	seen  int64
}

// CheckColumnCount fails every row whose width is not width. A width of 0
// takes the width of the first row.
func CheckColumnCount[V any](r Read[V], width int) Read[V] {
	return &columnCount[V]{decorator: decorator[V]{inner: r}, width: width}
}

func (c *columnCount[V]) Next(ctx context.Context) (Row[V], error) {
	if c.closed {
		return nil, useAfterClose()
	}
	row, err := c.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	idx := c.seen
	c.seen++
	if c.width == 0 {
		c.width = len(row)
	}
	if len(row) != c.width {
		return nil, errs.IO(&ColumnCountError{Row: idx, Want: c.width, Got: len(row)}, "read: column check")
	}
	return row, nil
}
