// Package commands implements the regression CLI.
package commands

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/config"
	"github.com/NethermindEth/eternal-regression/regression"
	"github.com/NethermindEth/eternal-regression/roster"
)

// offlineAcceptRate is how often the offline backend accepts a request.
const offlineAcceptRate = 0.5

// globalFlags are shared by every subcommand.
type globalFlags struct {
	offline  bool
	seed     int64
	castFile string
	attempts int
}

// NewRootCmd builds the CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "regression",
		Short: "Eternal regression simulator",
		Long: `Runs the Flame-Chase of Amphoreus over many cycles: the Chrysos Heirs decide
whether to chase the fire, the Flame-Thief persuades them to hand over their embers,
and what he learns each cycle carries into the next.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&flags.offline, "offline", false, "Use the built-in offline backend instead of a chat provider")
	pf.Int64Var(&flags.seed, "seed", 0, "Seed for target selection and the offline backend (default: time based)")
	pf.StringVar(&flags.castFile, "cast", "", "YAML cast file (default: $CAST_FILE or the built-in cast)")
	pf.IntVar(&flags.attempts, "attempts", 0, "Persuasion retry ceiling (default: $PERSUASION_ATTEMPTS)")

	root.AddCommand(
		newRunCmd(flags),
		newStreamCmd(flags),
		newExportCmd(flags),
		newServeCmd(flags),
		newCastCmd(flags),
	)
	return root
}

// env is what a command needs once configuration has been resolved.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	cast    roster.Cast
	backend ai.Backend
	seeded  bool
}

func setup(cmd *cobra.Command, flags *globalFlags, needModel bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	castFile := flags.castFile
	if castFile == "" {
		castFile = cfg.CastFile
	}
	cast, err := roster.Load(castFile)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:    cfg,
		logger: logger,
		cast:   cast,
		seeded: cmd.Flags().Changed("seed"),
	}
	if !needModel {
		return e, nil
	}

	if flags.offline {
		logger.Info("using offline backend", "seed", flags.seed)
		e.backend = ai.NewOfflineBackend(flags.seed, offlineAcceptRate)
		return e, nil
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, fmt.Errorf("%w (or pass --offline)", err)
	}
	backend, err := ai.NewOpenAIBackend(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("using chat provider", "provider", cfg.Provider, "model", cfg.LLM.Model, "stream", cfg.Sampling.Stream)
	e.backend = backend
	return e, nil
}

func (e *env) driver(flags *globalFlags) (*regression.Driver, error) {
	opts := regression.Options{
		MaxAttempts: e.cfg.PersuasionAttempts,
		Agent:       e.cfg.AgentConfig(e.logger),
		Logger:      e.logger,
	}
	if flags.attempts > 0 {
		opts.MaxAttempts = flags.attempts
	}
	if e.seeded {
		opts.Rand = rand.New(rand.NewSource(flags.seed))
	}
	return regression.New(e.backend, e.cast, opts)
}
