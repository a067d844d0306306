package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternal-regression/communication"
	"github.com/NethermindEth/eternal-regression/core"
)

func newStreamCmd(flags *globalFlags) *cobra.Command {
	var (
		rounds int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Run a regression and print each event as it happens",
		Long: `Prints every event of the regression as soon as it is produced. When NATS_URL
is set the events are also published on regression.<run>.events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, flags, true)
			if err != nil {
				return err
			}
			d, err := e.driver(flags)
			if err != nil {
				return err
			}
			s, err := d.Stream(rounds)
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			out := cmd.OutOrStdout()
			var sinks communication.Fanout
			if e.cfg.NATSURL != "" {
				m, err := communication.NewMessenger(e.cfg.NATSURL, e.logger)
				if err != nil {
					return err
				}
				defer m.Close()
				sinks = append(sinks, m)
				e.logger.Info("publishing events", "subject", communication.EventSubject(runID))
			}

			enc := json.NewEncoder(out)
			return s.Each(cmd.Context(), func(ev core.Event) error {
				if err := sinks.Publish(runID, ev); err != nil {
					e.logger.Warn("failed to publish event", "type", ev.Type, "error", err)
				}
				if asJSON {
					return enc.Encode(ev)
				}
				printEvent(out, ev)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 6, "Number of rounds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON lines")
	return cmd
}

func printEvent(w io.Writer, ev core.Event) {
	switch ev.Type {
	case core.EventStart:
		fmt.Fprintf(w, "=== Eternal regression started: %d rounds ===\n", ev.Rounds)
	case core.EventRoundStart:
		fmt.Fprintf(w, "\n--- Round %d ---\n", ev.Round)
	case core.EventOracle, core.EventPersuasion:
		fmt.Fprintf(w, "[%s] %s: %s\n", ev.Type, ev.CharName, ev.Message)
	case core.EventFireDecision, core.EventHandoverDecision:
		fmt.Fprintf(w, "[%s] %s decides %s\n", ev.Type, ev.CharName, ev.Decision)
	case core.EventFireResult, core.EventHandoverResult:
		fmt.Fprintf(w, "[%s] %v\n", ev.Type, ev.Result)
	case core.EventPersuasionAttempt:
		fmt.Fprintf(w, "[%s] attempt %d on %s\n", ev.Type, ev.Attempt, strings.Join(ev.Targets, ", "))
	case core.EventPersuasionDetail:
		fmt.Fprintf(w, "[%s] %s -> %s: %s\n", ev.Type, ev.CharName, ev.TargetName, ev.Message)
	case core.EventHandoverRedecision:
		fmt.Fprintf(w, "[%s] %s decides %s on attempt %d\n", ev.Type, ev.CharName, ev.Decision, ev.Attempt)
	case core.EventRobbery:
		fmt.Fprintf(w, "[%s] the ember of %s is seized\n", ev.Type, ev.CharName)
	case core.EventRoundEnd:
		fmt.Fprintf(w, "[%s] seized %v, memories %v\n", ev.Type, ev.Seized, ev.MemoryCount)
	case core.EventComplete:
		fmt.Fprintf(w, "\n=== Regression complete: %d rounds run ===\n", ev.Rounds)
	default:
		fmt.Fprintf(w, "[%s]\n", ev.Type)
	}
}
