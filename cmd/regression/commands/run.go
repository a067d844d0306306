package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternal-regression/insights"
	"github.com/NethermindEth/eternal-regression/regression"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		rounds int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a regression and print the per-round statistics",
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

			analysis := insights.Analyze(log.Rounds)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					*regression.Log
					Analysis insights.Analysis `json:"analysis"`
				}{log, analysis})
			}
			printAnalysis(cmd.OutOrStdout(), analysis, d)
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 6, "Number of rounds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the round log and analysis as JSON")
	return cmd
}

func printAnalysis(w io.Writer, a insights.Analysis, d *regression.Driver) {
	fmt.Fprintf(w, "=== Eternal regression: %d rounds ===\n", a.TotalRounds)
	for _, r := range a.Rounds {
		fmt.Fprintf(w, "Round %d\n", r.Round)
		fmt.Fprintf(w, "  chasing:           %d\n", r.Chasing)
		fmt.Fprintf(w, "  surrendered:       %d\n", r.Surrendered)
		fmt.Fprintf(w, "  seized:            %d\n", r.Seized)
		fmt.Fprintf(w, "  not participating: %d\n", r.NotParticipating)
		if r.Unresolved > 0 {
			fmt.Fprintf(w, "  unresolved:        %d\n", r.Unresolved)
		}
		if len(r.SeizedIDs) > 0 {
			fmt.Fprintf(w, "  seized heirs:      %s\n", strings.Join(r.SeizedIDs, ", "))
		}
	}
	for _, adv := range d.Adversaries() {
		fmt.Fprintf(w, "%s carries %d memories\n", adv.Name, adv.Memory().Len())
	}
	fmt.Fprintf(w, "=== Regression complete: %d rounds run ===\n", a.TotalRounds)
}
