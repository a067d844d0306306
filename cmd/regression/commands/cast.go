package commands

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCastCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cast",
		Short: "Print the cast as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, flags, false)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(e.cast); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
