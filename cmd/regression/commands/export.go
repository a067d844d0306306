package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternal-regression/insights"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		rounds int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run a regression and write the viewer document",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, flags, true)
			if err != nil {
				return err
			}
			d, err := e.driver(flags)
			if err != nil {
				return err
			}
			log, err := d.Run(cmd.Context(), rounds)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(insights.Export(log.Rounds), "", "  ")
			if err != nil {
				return fmt.Errorf("encode export: %w", err)
			}
			if out == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			e.logger.Info("export written", "path", out, "rounds", len(log.Rounds))
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 6, "Number of rounds")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}
