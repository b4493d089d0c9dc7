package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tableread/internal/config"
	"tableread/internal/status"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the node configuration without touching any storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			msgs := config.Validate(n)
			msgs.Log(opts.logger)

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d error(s), %d warning(s)\n", opts.configPath,
				len(msgs.Filter(status.Error)), len(msgs.Filter(status.Warning)))
			return msgs.Err()
		},
	}
}
