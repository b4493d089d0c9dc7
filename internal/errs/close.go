package errs

import (
	"io"

	"go.uber.org/multierr"
)

// CloseAll closes every non-nil closer, in order, even after a failure. All
// close errors are collected into one error (see multierr.Errors).
func CloseAll(closers ...io.Closer) error {
	var err error
	for _, c := range closers {
		if c == nil {
			continue
		}
		err = multierr.Append(err, c.Close())
	}
	return err
}

// CloseFunc adapts a function to io.Closer.
type CloseFunc func() error

func (f CloseFunc) Close() error { return f() }
