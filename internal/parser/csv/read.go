// Package csv tokenizes delimited text into a read.Read[string]. It does no
// typing: every token is the raw field text.
package csv

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"

	"tableread/internal/errs"
	"tableread/internal/read"
)

// Reader is a read.Read[string] over CSV bytes. Progress counts bytes
// consumed from the source.
type Reader struct {
	src    io.ReadCloser
	count  *countingReader
	cr     *csv.Reader
	opt    Options
	size   int64
	first  bool
	eof    bool
	closed bool
}

// NewRead returns a cursor over src. size is the source length in bytes, or a
// negative value when unknown. The Reader owns src and closes it on Close.
func NewRead(src io.ReadCloser, size int64, opt Options) *Reader {
	if opt.Comma == 0 {
		opt.Comma = ','
	}
	count := &countingReader{r: src}
	cr := csv.NewReader(rewrite(count, opt.Replace))
	cr.Comma = opt.Comma
	cr.Comment = opt.Comment
	cr.LazyQuotes = opt.LazyQuotes
	// Width is checked by read.CheckColumnCount, not by the tokenizer.
	cr.FieldsPerRecord = -1
	// Every row handed out must be a fresh slice.
	cr.ReuseRecord = false

	return &Reader{
		src:   src,
		count: count,
		cr:    cr,
		opt:   opt,
		size:  size,
		first: true,
	}
}

func (r *Reader) Next(ctx context.Context) (read.Row[string], error) {
	if r.closed {
		return nil, errs.UseAfterClosef("csv: next called after close")
	}
	if r.eof {
		return nil, io.EOF
	}
	if err := errs.CheckContext(ctx); err != nil {
		return nil, err
	}

	rec, err := r.cr.Read()
	if errors.Is(err, io.EOF) {
		r.eof = true
		return nil, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, errs.IO(err, "csv: line %d", pe.Line)
		}
		return nil, errs.IO(err, "csv: read")
	}

	if r.first {
		r.first = false
		if r.opt.StripBOM {
			rec = stripBOM(rec)
		}
	}
	if r.opt.TrimSpace {
		for i, v := range rec {
			rec[i] = strings.TrimSpace(v)
		}
	}
	return read.Row[string](rec), nil
}

// Progress is the number of bytes read from the source so far.
func (r *Reader) Progress() int64 { return r.count.n }

// MaxProgress is the source size when it was given.
func (r *Reader) MaxProgress() (int64, bool) {
	if r.size < 0 {
		return 0, false
	}
	return r.size, true
}

// Close closes the source. It is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.src.Close(); err != nil {
		return errs.IO(err, "csv: close")
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ read.Read[string] = (*Reader)(nil)
