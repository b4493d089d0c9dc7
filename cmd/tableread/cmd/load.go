package cmd

import (
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"tableread/internal/errs"
	"tableread/internal/metrics"
	"tableread/internal/node"
	"tableread/internal/read"
	"tableread/internal/sink"
	"tableread/internal/sink/all"
)

func newLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Read every location and load the rows into the configured sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			n, err := opts.loadNode()
			if err != nil {
				return err
			}
			if n.Sink.Kind == "" {
				return errs.Configurationf("sink.kind must be set to load")
			}
			flush := opts.setupMetrics(n)
			defer flush()

			done := metrics.StartStep(n.Job, metrics.StepLoad)
			defer func() { done(err) }()

			ctx := cmd.Context()
			logger := opts.logger.WithFields(log.Fields{"job": n.Job, "sink": n.Sink.Kind, "table": n.Sink.Table})

			r, err := node.New(n, node.Options{Logger: opts.logger})
			if err != nil {
				return err
			}
			s, msgs, err := r.Configure(ctx)
			msgs.Log(opts.logger)
			if err != nil {
				return err
			}
			if s.Width() == 0 {
				logger.Warn("nothing to load")
				return nil
			}

			snk, err := all.Open(ctx, n.Sink)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, snk.Close()) }()

			if n.Sink.CreateTable {
				tc, ok := snk.(sink.TableCreator)
				if !ok {
					return errs.Configurationf("sink %s cannot create tables", n.Sink.Kind)
				}
				if err := tc.CreateTable(ctx, s); err != nil {
					return err
				}
			}

			b, err := sink.NewBatcher(snk, s.Names(), n.Sink.BatchSize, n.Job, opts.logger)
			if err != nil {
				return err
			}
			stats, err := r.Execute(ctx, func(row read.Row[string]) error {
				return b.Add(ctx, row)
			})
			stats.Messages.Log(opts.logger)
			if err != nil {
				return err
			}
			if err := b.Flush(ctx); err != nil {
				return err
			}

			logger.WithFields(log.Fields{
				"locations": stats.Locations,
				"read":      stats.Rows,
				"written":   b.Total(),
				"batches":   b.Batches(),
			}).Info("load finished")
			return nil
		},
	}
}
