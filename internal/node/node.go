// Package node is the table reader as a workflow node sees it: a configure
// step that derives the TableSpec from the first location, and an execute
// step that streams the rows of every location through the read policy.
package node

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"tableread/internal/config"
	"tableread/internal/connection"
	"tableread/internal/errs"
	"tableread/internal/location"
	"tableread/internal/metrics"
	"tableread/internal/parser/csv"
	"tableread/internal/provider"
	"tableread/internal/read"
	"tableread/internal/resolver"
	"tableread/internal/spec"
	"tableread/internal/status"
)

// ColumnType is the type every inferred column gets; tokens are untyped text.
const ColumnType = "string"

const defaultLogEvery = 100_000

// Progress is reported while a location streams.
type Progress struct {
	// Index is the position of Location in the node's location list.
	Index    int
	Location location.Location
	// Current is the inner read's progress (bytes for CSV sources).
	Current int64
	Max     int64
	HasMax  bool
	// Rows is the number of rows emitted from this location so far.
	Rows int64
}

// Stats summarises one Execute.
type Stats struct {
	Locations int
	Rows      int64
	Messages  status.Messages
}

// Options wires a Reader to its environment.
type Options struct {
	Resolver *resolver.Resolver
	// Conn backs Connected locations. The Reader never closes it.
	Conn connection.Connection
	// OnProgress, when set, is called after every emitted row.
	OnProgress func(Progress)
	// LogEvery is the heartbeat interval in rows. Defaults to 100000.
	LogEvery int64
	Logger   log.Interface
}

// Reader reads the tables described by a node configuration.
type Reader struct {
	job      string
	settings config.Read
	locs     []location.Location
	csv      csv.Options

	res        *resolver.Resolver
	conn       connection.Connection
	onProgress func(Progress)
	logEvery   int64
	logger     log.Interface

	configured *spec.TableSpec[string]
}

// New validates the node's locations and returns a Reader. A nil
// opts.Resolver resolves against the node's own workspace, mounts, hub and
// URL settings.
func New(n config.Node, opts Options) (*Reader, error) {
	if len(n.Locations) == 0 {
		return nil, errs.Configurationf("node: no locations configured")
	}
	locs := make([]location.Location, len(n.Locations))
	for i, l := range n.Locations {
		loc, err := l.Location()
		if err != nil {
			return nil, errors.Wrapf(err, "node: locations[%d]", i)
		}
		locs[i] = loc
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Log
	}
	logger = logger.WithField("job", n.Job)

	res := opts.Resolver
	if res == nil {
		var err error
		if res, err = NewResolver(n, logger); err != nil {
			return nil, err
		}
	}

	logEvery := opts.LogEvery
	if logEvery <= 0 {
		logEvery = defaultLogEvery
	}

	return &Reader{
		job:        n.Job,
		settings:   n.Read,
		locs:       locs,
		csv:        csv.FromOptions(n.CSV),
		res:        res,
		conn:       opts.Conn,
		onProgress: opts.OnProgress,
		logEvery:   logEvery,
		logger:     logger,
	}, nil
}

// Locations returns the parsed locations in configuration order.
func (r *Reader) Locations() []location.Location {
	out := make([]location.Location, len(r.locs))
	copy(out, r.locs)
	return out
}

// Spec returns the table spec of the last successful Configure.
func (r *Reader) Spec() (spec.TableSpec[string], bool) {
	if r.configured == nil {
		return spec.TableSpec[string]{}, false
	}
	return *r.configured, true
}

// SetSpec installs a spec without running Configure, e.g. one restored from a
// previous run. Execute checks column counts and header drift against it.
func (r *Reader) SetSpec(s spec.TableSpec[string]) { r.configured = &s }

func (r *Reader) resolve(ctx context.Context, loc location.Location) (provider.Factory, error) {
	start := time.Now()
	f, err := r.res.Resolve(ctx, loc.Category, loc.Specifier, r.conn)
	metrics.RecordStep(r.job, metrics.StepResolve, err, time.Since(start))
	return f, err
}

// open mints a provider for loc on f and opens a CSV read over its path. On
// success the caller owns both and closes them.
func (r *Reader) open(ctx context.Context, f provider.Factory, loc location.Location) (read.Read[string], provider.PathProvider, error) {
	pp, err := f.Create(loc)
	if err != nil {
		return nil, nil, err
	}
	path, err := pp.Path(ctx)
	if err != nil {
		return nil, nil, multierr.Append(err, pp.Close())
	}

	size := int64(-1)
	if info, ok := path.Info(); ok {
		size = info.Size
	}
	rc, err := path.Open(ctx)
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.Resolution(err, "node: open %s", path)
		}
		return nil, nil, multierr.Append(err, pp.Close())
	}
	return csv.NewRead(rc, size, r.csv), pp, nil
}

// Configure derives the TableSpec from the first location: leading rows are
// skipped, then one row gives the column names (header) or the width (prefix
// naming). Duplicate names are made unique with a warning.
//
// An empty source is a warning and an empty spec unless fail_on_empty is set,
// in which case the errs.ErrEmptySource error is returned.
func (r *Reader) Configure(ctx context.Context) (s spec.TableSpec[string], msgs status.Messages, err error) {
	done := metrics.StartStep(r.job, metrics.StepConfigure)
	defer func() { done(err) }()

	loc := r.locs[0]
	logger := r.logger.WithField("location", loc.String())

	f, err := r.resolve(ctx, loc)
	if err != nil {
		return s, nil, err
	}
	src, pp, err := r.open(ctx, f, loc)
	if err != nil {
		return s, nil, multierr.Append(err, f.Close())
	}
	defer func() {
		err = multierr.Append(err, errs.CloseAll(src, pp, f))
	}()

	var rd read.Read[string] = src
	if r.settings.SkipRows > 0 {
		rd = read.SkipRows(rd, r.settings.SkipRows)
	}
	naming := spec.PrefixNaming[string](r.settings.Prefix())
	if r.settings.HasHeader {
		naming = spec.HeaderNaming(r.settings.Prefix())
	}

	s, err = spec.Build(ctx, rd, naming, ColumnType)
	if errors.Is(err, errs.ErrEmptySource) {
		if r.settings.FailOnEmpty {
			return s, nil, errors.Wrapf(err, "node: %s", loc)
		}
		msgs = append(msgs, status.Warningf("locations[0]", "%s has no rows; the table spec is empty", loc))
		logger.Warn("empty source")
		r.configured = &s
		return s, msgs, nil
	}
	if err != nil {
		return s, nil, err
	}

	if names, changed := spec.UniqueNames(s.Names()); changed {
		msgs = append(msgs, status.Warningf("read.has_header",
			"duplicate column names were renamed: %s", strings.Join(renamed(s.Names(), names), ", ")))
		s = s.Rename(names)
	}

	logger.WithField("columns", s.Width()).Info("configured")
	r.configured = &s
	return s, msgs, nil
}

func renamed(before, after []string) []string {
	var out []string
	for i := range before {
		if before[i] != after[i] {
			out = append(out, fmt.Sprintf("%q -> %q", before[i], after[i]))
		}
	}
	return out
}

// Execute streams every location in order through the read policy and hands
// each row to emit. Rows are freshly allocated and may be retained. An error
// from emit stops the execution and is returned as is.
//
// Locations sharing a category and specifier share one factory for the
// duration of the call. Every read, provider and factory is closed before
// Execute returns.
func (r *Reader) Execute(ctx context.Context, emit func(read.Row[string]) error) (stats Stats, err error) {
	done := metrics.StartStep(r.job, metrics.StepExecute)
	defer func() { done(err) }()

	type factoryKey struct {
		category  location.Category
		specifier string
	}
	factories := make(map[factoryKey]provider.Factory)
	var order []io.Closer
	defer func() {
		err = multierr.Append(err, errs.CloseAll(order...))
	}()

	width := 0
	if r.configured != nil {
		width = r.configured.Width()
	}

	for i, loc := range r.locs {
		if err := errs.CheckContext(ctx); err != nil {
			return stats, err
		}

		key := factoryKey{loc.Category, loc.Specifier}
		f, ok := factories[key]
		if !ok {
			if f, err = r.resolve(ctx, loc); err != nil {
				return stats, err
			}
			factories[key] = f
			order = append(order, f)
		}

		msgs, n, err := r.executeOne(ctx, i, loc, f, width, emit)
		stats.Rows += n
		stats.Messages = append(stats.Messages, msgs...)
		metrics.RecordRows(r.job, metrics.RowsRead, n)
		if err != nil {
			return stats, err
		}
		stats.Locations++
	}

	r.logger.WithFields(log.Fields{"locations": stats.Locations, "rows": stats.Rows}).Info("execute finished")
	return stats, nil
}

func (r *Reader) executeOne(ctx context.Context, idx int, loc location.Location, f provider.Factory, width int, emit func(read.Row[string]) error) (msgs status.Messages, rows int64, err error) {
	logger := r.logger.WithField("location", loc.String())

	src, pp, err := r.open(ctx, f, loc)
	if err != nil {
		return nil, 0, err
	}

	var tap *headerTap
	var in read.Read[string] = src
	if r.settings.HasHeader {
		tap = &headerTap{Read: src, at: r.settings.SkipRows}
		in = tap
	}
	rd := read.Apply(r.settings.Policy(width), in)
	defer func() {
		err = multierr.Append(err, errs.CloseAll(rd, pp))
	}()

	maxProgress, hasMax := rd.MaxProgress()
	var emitErr error
	readErr := read.ForEach(ctx, rd, func(row read.Row[string]) error {
		if rows == 0 && tap != nil {
			msgs = append(msgs, r.checkDrift(ctx, idx, loc, tap.header)...)
		}
		if emitErr = emit(row); emitErr != nil {
			return emitErr
		}
		rows++

		if r.onProgress != nil {
			r.onProgress(Progress{Index: idx, Location: loc, Current: rd.Progress(), Max: maxProgress, HasMax: hasMax, Rows: rows})
		}
		if rows%r.logEvery == 0 {
			logger.WithField("rows", rows).Debug("reading")
		}
		return nil
	})
	switch {
	case readErr == nil:
	case emitErr != nil, errs.KindOf(readErr) == errs.KindCancelled:
		return msgs, rows, readErr
	default:
		return msgs, rows, errors.Wrapf(readErr, "node: %s", loc)
	}

	logger.WithFields(log.Fields{"rows": rows, "bytes": rd.Progress()}).Info("location done")
	return msgs, rows, nil
}

// checkDrift compares the header of a location against the configured spec.
func (r *Reader) checkDrift(ctx context.Context, idx int, loc location.Location, header read.Row[string]) status.Messages {
	if r.configured == nil || header == nil {
		return nil
	}
	got, err := spec.Build(ctx, read.FromRows([]read.Row[string]{header}), spec.HeaderNaming(r.settings.Prefix()), ColumnType)
	if err != nil {
		return nil
	}
	if names, changed := spec.UniqueNames(got.Names()); changed {
		got = got.Rename(names)
	}
	if got.Fingerprint() == r.configured.Fingerprint() {
		return nil
	}
	r.logger.WithField("location", loc.String()).Warn("header differs from the configured spec")
	return status.Messages{status.Warningf(fmt.Sprintf("locations[%d]", idx),
		"header of %s (%s) differs from the configured columns (%s)",
		loc, strings.Join(got.Names(), ", "), strings.Join(r.configured.Names(), ", "))}
}

// headerTap records the row at position at (0-based, counted on the inner
// read) as it passes through.
type headerTap struct {
	read.Read[string]
	at     int64
	seen   int64
	header read.Row[string]
}

func (t *headerTap) Next(ctx context.Context) (read.Row[string], error) {
	row, err := t.Read.Next(ctx)
	if err != nil {
		return row, err
	}
	if t.seen == t.at {
		t.header = append(read.Row[string](nil), row...)
	}
	t.seen++
	return row, nil
}
