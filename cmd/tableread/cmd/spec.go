package cmd

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tableread/internal/node"
)

func newSpecCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "spec",
		Short: "Infer the table spec from the first location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.loadNode()
			if err != nil {
				return err
			}
			flush := opts.setupMetrics(n)
			defer flush()

			r, err := node.New(n, node.Options{Logger: opts.logger})
			if err != nil {
				return err
			}
			s, msgs, err := r.Configure(cmd.Context())
			msgs.Log(opts.logger)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"#", "Name", "Type"})
			table.SetAutoFormatHeaders(false)
			for i, c := range s.Columns {
				table.Append([]string{strconv.Itoa(i), c.Name, c.Type})
			}
			table.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "fingerprint: %016x\n", s.Fingerprint())
			return nil
		},
	}
}
