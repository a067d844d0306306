package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternal-regression/api"
	"github.com/NethermindEth/eternal-regression/api/handlers"
	"github.com/NethermindEth/eternal-regression/communication"
	"github.com/NethermindEth/eternal-regression/registry"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the regression API and the live event feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, flags, true)
			if err != nil {
				return err
			}
			if port == "" {
				port = e.cfg.APIPort
			}
			gin.SetMode(gin.ReleaseMode)

			hub := communication.NewHub(e.logger)
			defer hub.Close()

			deps := handlers.Deps{
				Cast:        e.cast,
				Backend:     e.backend,
				Agent:       e.cfg.AgentConfig(e.logger),
				MaxAttempts: e.cfg.PersuasionAttempts,
				Registry:    registry.New(),
				Hub:         hub,
				Logger:      e.logger,
			}
			if flags.attempts > 0 {
				deps.MaxAttempts = flags.attempts
			}
			if e.cfg.NATSURL != "" {
				m, err := communication.NewMessenger(e.cfg.NATSURL, e.logger)
				if err != nil {
					return err
				}
				defer m.Close()
				deps.Messenger = m
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.StartServer(ctx, ":"+port, deps)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP port (default: $API_PORT)")
	return cmd
}
