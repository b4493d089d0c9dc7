// Package spec derives a table description from the first row of a Read.
package spec

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tableread/internal/errs"
	"tableread/internal/read"
)

// Column is one named, optionally typed column.
type Column[T any] struct {
	Name    string
	Type    T
	HasType bool
}

// TableSpec is an ordered list of columns. Names are not required to be
// unique; see UniqueNames.
type TableSpec[T any] struct {
	Columns []Column[T]
}

// Width is the number of columns.
func (s TableSpec[T]) Width() int { return len(s.Columns) }

// Names returns the column names in order.
func (s TableSpec[T]) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Rename returns a copy of s with the given names. names must have Width
// entries.
func (s TableSpec[T]) Rename(names []string) TableSpec[T] {
	cols := make([]Column[T], len(s.Columns))
	copy(cols, s.Columns)
	for i := range cols {
		if i < len(names) {
			cols[i].Name = names[i]
		}
	}
	return TableSpec[T]{Columns: cols}
}

// Fingerprint hashes the column names and types. Two specs with the same
// fingerprint describe the same table layout.
func (s TableSpec[T]) Fingerprint() uint64 {
	var b strings.Builder
	for _, c := range s.Columns {
		b.WriteString(c.Name)
		b.WriteByte(0x1f)
		if c.HasType {
			fmt.Fprint(&b, c.Type)
		}
		b.WriteByte(0x1e)
	}
	return xxh3.HashString(b.String())
}

// NamingFunc names the column at index from the token found there.
type NamingFunc[V any] func(index int, token V) string

// PrefixNaming ignores the token and names columns prefix followed by the
// lower-case hexadecimal index: Column0 ... Column9, Columna, Columnb.
func PrefixNaming[V any](prefix string) NamingFunc[V] {
	return func(index int, _ V) string {
		return prefix + strconv.FormatInt(int64(index), 16)
	}
}

// HeaderNaming takes column names from a header row. Tokens are cleaned of
// combining marks and surrounding space; empty tokens fall back to
// PrefixNaming.
func HeaderNaming(prefix string) NamingFunc[string] {
	fallback := PrefixNaming[string](prefix)
	return func(index int, token string) string {
		if name := CleanName(token); name != "" {
			return name
		}
		return fallback(index, token)
	}
}

// CleanName strips accents (NFD, drop Mn, NFC), control characters and
// surrounding white space.
func CleanName(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.In(unicode.Cc)),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}

// Build pulls exactly one row from r and returns one column per token, named
// by naming and typed defaultType. r is not closed. A source without rows
// fails with errs.ErrEmptySource.
func Build[V, T any](ctx context.Context, r read.Read[V], naming NamingFunc[V], defaultType T) (TableSpec[T], error) {
	row, err := r.Next(ctx)
	if errors.Is(err, io.EOF) {
		return TableSpec[T]{}, errs.EmptySourcef("spec: source has no rows")
	}
	if err != nil {
		return TableSpec[T]{}, err
	}
	cols := make([]Column[T], len(row))
	for i, tok := range row {
		cols[i] = Column[T]{Name: naming(i, tok), Type: defaultType, HasType: true}
	}
	return TableSpec[T]{Columns: cols}, nil
}

// UniqueNames returns names with duplicates renamed "name (#n)", keeping the
// first occurrence unchanged. The second result reports whether anything was
// renamed.
func UniqueNames(names []string) ([]string, bool) {
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = false
	}
	out := make([]string, len(names))
	changed := false
	for i, n := range names {
		if !taken[n] {
			taken[n] = true
			out[i] = n
			continue
		}
		changed = true
		for k := 1; ; k++ {
			candidate := n + " (#" + strconv.Itoa(k) + ")"
			if _, exists := taken[candidate]; !exists {
				taken[candidate] = true
				out[i] = candidate
				break
			}
		}
	}
	return out, changed
}
