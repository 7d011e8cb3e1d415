package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askiada/go-automl/pkg/automl/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration or list the embedded presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bind(cmd)
			if err != nil {
				return err
			}

			if v.GetBool("list") {
				for _, name := range config.Presets() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}

				return nil
			}

			return config.Template(cmd.OutOrStdout())
		},
	}

	cmd.Flags().Bool("list", false, "List the embedded presets instead.")

	return cmd
}
