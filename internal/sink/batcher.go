package sink

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"tableread/internal/errs"
	"tableread/internal/metrics"
	"tableread/internal/read"
)

// Batcher groups rows pushed with Add into batches of a fixed size and writes
// each full batch to a Sink. Call Flush once the input is exhausted.
//
// A progress line is logged on every successful write with running totals
// and rows/sec since the previous write.
type Batcher struct {
	sink    Sink
	columns []string
	size    int
	job     string
	logger  log.Interface

	batch   [][]any
	total   int64
	batches int64

	start     time.Time
	lastFlush time.Time
	lastTotal int64
}

// NewBatcher returns a batcher writing to s. size <= 0 uses DefaultBatchSize.
// job labels the metrics; logger may be nil.
func NewBatcher(s Sink, columns []string, size int, job string, logger log.Interface) (*Batcher, error) {
	if s == nil {
		return nil, errs.Configurationf("sink: batcher needs a sink")
	}
	if len(columns) == 0 {
		return nil, errs.Configurationf("sink: batcher needs at least one column")
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	if logger == nil {
		logger = log.Log
	}
	now := time.Now()
	return &Batcher{
		sink:      s,
		columns:   columns,
		size:      size,
		job:       job,
		logger:    logger,
		batch:     make([][]any, 0, size),
		start:     now,
		lastFlush: now,
	}, nil
}

// Add appends row, writing the batch when it is full. Rows narrower than the
// column list are padded with NULL; wider rows are an error.
func (b *Batcher) Add(ctx context.Context, row read.Row[string]) error {
	if len(row) > len(b.columns) {
		return errs.IO(nil, "sink: row has %d values for %d columns", len(row), len(b.columns))
	}
	vals := make([]any, len(b.columns))
	for i, v := range row {
		vals[i] = v
	}
	b.batch = append(b.batch, vals)
	if len(b.batch) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

// Flush writes the pending rows, if any.
func (b *Batcher) Flush(ctx context.Context) error {
	if err := b.flush(ctx); err != nil {
		return err
	}
	b.logger.WithFields(log.Fields{
		"batches": b.batches,
		"total":   b.total,
		"elapsed": time.Since(b.start).Truncate(time.Millisecond).String(),
	}).Info("sink: input done")
	return nil
}

// Total is the number of rows written so far.
func (b *Batcher) Total() int64 { return b.total }

// Batches is the number of successful writes so far.
func (b *Batcher) Batches() int64 { return b.batches }

func (b *Batcher) flush(ctx context.Context) error {
	if len(b.batch) == 0 {
		return nil
	}
	if err := errs.CheckContext(ctx); err != nil {
		return err
	}

	n, err := b.sink.Write(ctx, b.columns, b.batch)
	b.total += n
	metrics.RecordRows(b.job, metrics.RowsWritten, n)
	// Rows are copied into the backend by Write; the backing array is reused.
	b.batch = b.batch[:0]
	if err != nil {
		b.logger.WithError(err).WithFields(log.Fields{"written": n, "total": b.total}).Error("sink: write failed")
		return errors.Wrapf(err, "sink: batch %d", b.batches+1)
	}

	b.batches++
	metrics.RecordBatches(b.job, 1)

	now := time.Now()
	since := now.Sub(b.lastFlush)
	rps := float64(0)
	if since > 0 {
		rps = float64(b.total-b.lastTotal) / since.Seconds()
	}
	b.logger.WithFields(log.Fields{
		"batch":      b.batches,
		"rps":        int64(rps),
		"written":    n,
		"total":      b.total,
		"elapsed":    now.Sub(b.start).Truncate(time.Millisecond).String(),
		"since_last": since.Truncate(time.Millisecond).String(),
	}).Debug("sink: batch written")
	b.lastFlush = now
	b.lastTotal = b.total
	return nil
}
