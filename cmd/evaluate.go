package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/experiment"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

// EvaluateCommand returns the command evaluating a saved agent
func EvaluateCommand() *cobra.Command {
	var (
		episodes   int
		loadMemory bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a trained agent without learning",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			env, a, err := setup(cmd, log)
			if err != nil {
				return err
			}
			err = a.Load(checkpointName(),
				agent.Checkpoint{ReplayMemory: loadMemory})
			if err != nil {
				return err
			}

			returns, err := experiment.Evaluate(ctx, env, a, episodes)
			if err != nil {
				return err
			}
			mean, std := stat.MeanStdDev(returns, nil)
			fmt.Fprintf(cmd.OutOrStdout(), "episodes: %d  mean return: "+
				"%.2f  std: %.2f\n", len(returns), mean, std)
			return nil
		},
	}

	cmd.Flags().IntVar(&episodes, "episodes", 10, "Number of episodes to run")
	cmd.Flags().BoolVar(&loadMemory, "load-memory", false,
		"Load replay memory saved with the checkpoint")
	return cmd
}
