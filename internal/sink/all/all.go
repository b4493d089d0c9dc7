// Package all opens any built-in sink from its configuration.
//
// It is the single place that knows every backend, so the CLI can stay
// backend-agnostic:
//
//	s, err := all.Open(ctx, cfg.Sink)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
package all

import (
	"context"
	"strings"

	"tableread/internal/config"
	"tableread/internal/errs"
	"tableread/internal/sink"
	"tableread/internal/sink/pgsink"
	"tableread/internal/sink/sqlsink"
)

// Kinds lists every kind Open accepts.
func Kinds() []string { return append(sqlsink.Kinds(), "postgres") }

// Open returns the sink selected by cfg.Kind.
func Open(ctx context.Context, cfg config.Sink) (sink.Sink, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Kind)); kind {
	case "postgres", "postgresql", "pg":
		return pgsink.New(ctx, pgsink.Config{DSN: cfg.DSN, Table: cfg.Table})
	case "":
		return nil, errs.Configurationf("sink: kind must be set")
	default:
		for _, k := range sqlsink.Kinds() {
			if k == kind {
				return sqlsink.New(ctx, sqlsink.Config{Kind: kind, DSN: cfg.DSN, Table: cfg.Table})
			}
		}
		return nil, errs.Configurationf("sink: unknown kind %q (want one of %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
}
