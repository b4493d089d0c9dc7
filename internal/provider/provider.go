// Package provider turns locations into checked, closeable paths.
//
// A Factory is created once per (category, specifier) by the resolver and
// mints one PathProvider per location. Whoever creates a Factory or a
// PathProvider closes it; closing a Factory releases the connection it owns
// and invalidates every provider it minted.
package provider

import (
	"context"

	"tableread/internal/connection"
	"tableread/internal/location"
)

// PathProvider resolves one location.
type PathProvider interface {
	// Path returns the resolved path after checking that it exists. It may
	// block on the network. A missing or unreachable item is
	// errs.ErrResolution. The path's Info holds the metadata of that check.
	Path(ctx context.Context) (connection.Path, error)

	// UncheckedPath returns the path syntactically, without touching storage.
	UncheckedPath() (string, error)

	// Close releases the provider. It is idempotent.
	Close() error
}

// Factory mints PathProviders for locations of one category.
type Factory interface {
	// Create returns a provider for loc. It does not block.
	Create(loc location.Location) (PathProvider, error)

	// Close releases the connection the factory owns, if any. It is
	// idempotent.
	Close() error
}
