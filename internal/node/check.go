package node

import (
	"context"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"tableread/internal/connection"
	"tableread/internal/errs"
	"tableread/internal/location"
)

// CheckResult is the outcome of resolving one location.
type CheckResult struct {
	Index    int
	Location location.Location
	// Path is the resolved path, or the unchecked form when resolution failed
	// after the provider was created.
	Path string
	Info connection.FileInfo
	Err  error
}

// Check resolves every location concurrently, each with its own factory and
// provider, and reports whether it exists. At most parallel locations are
// checked at once (0 means 4). Per-location failures are reported in the
// results; the returned error is only set when ctx is done.
func (r *Reader) Check(ctx context.Context, parallel int) ([]CheckResult, error) {
	if parallel <= 0 {
		parallel = 4
	}
	results := make([]CheckResult, len(r.locs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, loc := range r.locs {
		i, loc := i, loc
		g.Go(func() error {
			results[i] = r.checkOne(gctx, i, loc)
			return errs.CheckContext(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Reader) checkOne(ctx context.Context, idx int, loc location.Location) (res CheckResult) {
	res = CheckResult{Index: idx, Location: loc}

	f, err := r.resolve(ctx, loc)
	if err != nil {
		res.Err = err
		return res
	}
	pp, err := f.Create(loc)
	if err != nil {
		res.Err = multierr.Append(err, f.Close())
		return res
	}
	defer func() {
		if cerr := errs.CloseAll(pp, f); cerr != nil {
			res.Err = multierr.Append(res.Err, cerr)
		}
	}()

	res.Path, _ = pp.UncheckedPath()
	path, err := pp.Path(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.Path = path.String()
	res.Info, _ = path.Info()
	return res
}
