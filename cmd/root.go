// Package cmd implements the lrl command line interface
package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	// Layers register themselves with the agent package
	_ "github.com/samuelfneumann/lrl/agent/a2c"
	_ "github.com/samuelfneumann/lrl/agent/dqn"
	_ "github.com/samuelfneumann/lrl/agent/replay"
	_ "github.com/samuelfneumann/lrl/agent/target"
)

var log = zerolog.Nop()

// RootCommand returns the lrl command
func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lrl",
		Short:        "Train and evaluate layered reinforcement learning agents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			log, err = newLogger(cmd.ErrOrStderr(), flags.LogLevel)
			return err
		},
	}
	AddFlags(cmd)

	cmd.AddCommand(
		TrainCommand(),
		EvaluateCommand(),
	)
	return cmd
}
