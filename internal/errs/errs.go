// Package errs defines the error kinds shared by the resolution and read
// layers.
//
// Every error produced by this module that callers are expected to branch on
// carries one Kind. Kinds are matched with errors.Is against the exported
// sentinels:
//
//	if errors.Is(err, errs.ErrResolution) { ... }
//
// The underlying cause is preserved (errors.Unwrap / errors.As keep working),
// and causes created here carry a stack trace via github.com/pkg/errors so
// that "%+v" prints where the failure originated.
package errs

import (
	"context"

	"github.com/pkg/errors"
)

// Kind classifies an error.
type Kind uint8

const (
	// KindUnknown is returned by KindOf for errors that carry no kind.
	KindUnknown Kind = iota
	// KindConfiguration marks a bad or incomplete location/settings; the user
	// must reconfigure.
	KindConfiguration
	// KindResolution marks a location that does not exist or cannot be
	// reached. It is never retried by this layer.
	KindResolution
	// KindIO marks a failure while streaming rows.
	KindIO
	// KindEmptySource marks a spec inference that found no rows.
	KindEmptySource
	// KindUseAfterClose marks a call on an already closed resource.
	KindUseAfterClose
	// KindCancelled marks a user-initiated abort observed through a context.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindResolution:
		return "resolution error"
	case KindIO:
		return "i/o error"
	case KindEmptySource:
		return "empty source"
	case KindUseAfterClose:
		return "use after close"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown error"
	}
}

// Error is a kinded error wrapping an optional cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrResolution    = &Error{Kind: KindResolution}
	ErrIO            = &Error{Kind: KindIO}
	ErrEmptySource   = &Error{Kind: KindEmptySource}
	ErrUseAfterClose = &Error{Kind: KindUseAfterClose}
	ErrCancelled     = &Error{Kind: KindCancelled}
)

// KindOf returns the kind of the outermost kinded error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newf(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Err: errors.Errorf(format, args...)}
}

func wrapf(k Kind, err error, format string, args ...any) error {
	if err == nil {
		return newf(k, format, args...)
	}
	// Do not double-classify: an error that already has this kind keeps it.
	if KindOf(err) == k {
		return errors.Wrapf(err, format, args...)
	}
	return &Error{Kind: k, Err: errors.Wrapf(err, format, args...)}
}

// Configurationf returns a configuration error.
func Configurationf(format string, args ...any) error {
	return newf(KindConfiguration, format, args...)
}

// Resolutionf returns a resolution error without an underlying cause.
func Resolutionf(format string, args ...any) error {
	return newf(KindResolution, format, args...)
}

// Resolution wraps err as a resolution error.
func Resolution(err error, format string, args ...any) error {
	return wrapf(KindResolution, err, format, args...)
}

// IO wraps err as an I/O error.
func IO(err error, format string, args ...any) error {
	return wrapf(KindIO, err, format, args...)
}

// EmptySourcef returns an empty-source error.
func EmptySourcef(format string, args ...any) error {
	return newf(KindEmptySource, format, args...)
}

// UseAfterClosef returns a use-after-close error.
func UseAfterClosef(format string, args ...any) error {
	return newf(KindUseAfterClose, format, args...)
}

// Cancelled wraps a context error as a cancellation.
func Cancelled(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) == KindCancelled {
		return err
	}
	return &Error{Kind: KindCancelled, Err: errors.WithStack(err)}
}

// CheckContext returns a cancellation error if ctx is done.
func CheckContext(ctx context.Context) error {
	return Cancelled(ctx.Err())
}
