package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/experiment"
	"github.com/samuelfneumann/lrl/experiment/checkpointer"
	"github.com/samuelfneumann/lrl/experiment/tracker"
	"github.com/samuelfneumann/lrl/utils/progressbar"
	"github.com/spf13/cobra"
)

// TrainCommand returns the command training an agent online
func TrainCommand() *cobra.Command {
	var (
		frames          int
		checkpointEvery int
		saveMemory      bool
		plot            bool
		progress        bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an agent on cartpole for a budget of frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			env, a, err := setup(cmd, log)
			if err != nil {
				return err
			}

			check := agent.Checkpoint{ReplayMemory: saveMemory}
			returns := tracker.NewReturn(env.NumEnvs(), 100)
			o := experiment.NewOnline(env, a, frames)
			o.Register(returns)
			if checkpointEvery > 0 {
				c, err := checkpointer.NewNStep(checkpointEvery, a, check,
					checkpointer.Fixed(checkpointName()))
				if err != nil {
					return err
				}
				o.Checkpoint(c)
			}
			if progress {
				bar := progressbar.NewManualProgressBar(cmd.ErrOrStderr(), 50, frames)
				defer bar.Close()
				o.SetProgress(bar)
			}

			runErr := o.Run(ctx)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}

			// Interrupted runs are still saved
			if err := a.Save(checkpointName(), check); err != nil {
				return err
			}
			if err := returns.Save(filepath.Join(flags.Out,
				"returns.bin")); err != nil {
				return err
			}
			if plot {
				paths, err := experiment.Plot(a.Core().Logger,
					filepath.Join(flags.Out, "plots"))
				if err != nil {
					return err
				}
				log.Info().Strs("plots", paths).Msg("plots saved")
			}

			log.Info().
				Int("frames", a.Core().FramesDone).
				Int("episodes", returns.Episodes()).
				Float64("recent_mean_return", returns.MovingAverage()).
				Msg("training finished")
			fmt.Fprintf(cmd.OutOrStdout(), "frames: %d  episodes: %d  "+
				"recent mean return: %.2f\n", a.Core().FramesDone,
				returns.Episodes(), returns.MovingAverage())
			return runErr
		},
	}

	cmd.Flags().IntVar(&frames, "frames", 100_000, "Number of frames to train for")
	cmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0,
		"Frames between checkpoints, 0 to only save at the end")
	cmd.Flags().BoolVar(&saveMemory, "save-memory", false,
		"Save replay memory with each checkpoint")
	cmd.Flags().BoolVar(&plot, "plot", false, "Plot logged channels")
	cmd.Flags().BoolVar(&progress, "progress", true, "Show a progress bar")
	return cmd
}
