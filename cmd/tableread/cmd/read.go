package cmd

import (
	"encoding/csv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tableread/internal/errs"
	"tableread/internal/node"
	"tableread/internal/read"
)

func newReadCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read every location and print the rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "table" {
				return errs.Configurationf("unknown --format %q (want csv or table)", format)
			}
			n, err := opts.loadNode()
			if err != nil {
				return err
			}
			flush := opts.setupMetrics(n)
			defer flush()

			ctx := cmd.Context()
			r, err := node.New(n, node.Options{Logger: opts.logger})
			if err != nil {
				return err
			}
			s, msgs, err := r.Configure(ctx)
			msgs.Log(opts.logger)
			if err != nil {
				return err
			}

			if format == "table" {
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader(s.Names())
				table.SetAutoFormatHeaders(false)
				table.SetAutoWrapText(false)
				stats, err := r.Execute(ctx, func(row read.Row[string]) error {
					table.Append(row)
					return nil
				})
				stats.Messages.Log(opts.logger)
				if err != nil {
					return err
				}
				table.Render()
				return nil
			}

			w := csv.NewWriter(cmd.OutOrStdout())
			if s.Width() > 0 {
				if err := w.Write(s.Names()); err != nil {
					return errs.IO(err, "write header")
				}
			}
			stats, err := r.Execute(ctx, func(row read.Row[string]) error {
				return w.Write(row)
			})
			stats.Messages.Log(opts.logger)
			if err != nil {
				return err
			}
			w.Flush()
			if err := w.Error(); err != nil {
				return errs.IO(err, "write rows")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv, table)")
	return cmd
}
