package cmd

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tableread/internal/errs"
	"tableread/internal/node"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve every location and report whether it exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.loadNode()
			if err != nil {
				return err
			}
			r, err := node.New(n, node.Options{Logger: opts.logger})
			if err != nil {
				return err
			}
			results, err := r.Check(cmd.Context(), parallel)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"#", "Location", "Path", "Size", "Status"})
			table.SetAutoFormatHeaders(false)
			table.SetAutoWrapText(false)
			failed := 0
			for _, res := range results {
				size, state := "", "ok"
				if res.Err != nil {
					failed++
					state = res.Err.Error()
				} else if res.Info.Size >= 0 {
					size = strconv.FormatInt(res.Info.Size, 10)
				}
				table.Append([]string{strconv.Itoa(res.Index), res.Location.String(), res.Path, size, state})
			}
			table.Render()

			if failed > 0 {
				return errs.Resolutionf("%d of %d locations failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "locations checked at once")
	return cmd
}
