package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/environment"
	"github.com/samuelfneumann/lrl/environment/cartpole"
	"github.com/spf13/cobra"
)

// Flags are the command line options shared by all commands
type Flags struct {
	Algo         string
	ConfigPath   string
	Envs         int
	EpisodeSteps int
	Out          string
	LogLevel     string
	Seed         uint64
}

// DefaultFlags returns the default command line options
func DefaultFlags() *Flags {
	return &Flags{
		Algo:         string(agent.DQNReplayTarget),
		Envs:         1,
		EpisodeSteps: 500,
		Out:          "results",
		LogLevel:     "info",
	}
}

var flags = DefaultFlags()

// AddFlags adds the shared flags to cmd
func AddFlags(cmd *cobra.Command) {
	d := DefaultFlags()
	cmd.PersistentFlags().StringVar(&flags.Algo, "algo", d.Algo,
		fmt.Sprintf("Agent type, one of %v", agent.Types()))
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", d.ConfigPath,
		"JSON agent config, defaults are used for absent keys")
	cmd.PersistentFlags().IntVar(&flags.Envs, "envs", d.Envs,
		"Number of parallel environments")
	cmd.PersistentFlags().IntVar(&flags.EpisodeSteps, "episode-steps",
		d.EpisodeSteps, "Step limit of each episode, 0 for none")
	cmd.PersistentFlags().StringVarP(&flags.Out, "out", "o", d.Out,
		"Directory to save checkpoints and plots in")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", d.LogLevel,
		"Log level")
	cmd.PersistentFlags().Uint64Var(&flags.Seed, "seed", d.Seed,
		"Seed overriding the config's seed")
}

// newLogger returns a console logger at the given level writing to w
func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %v", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}

// config returns the agent config named by the flags
func config(cmd *cobra.Command) (agent.Config, error) {
	c := agent.DefaultConfig()
	if flags.ConfigPath != "" {
		var err error
		if c, err = agent.LoadConfig(flags.ConfigPath); err != nil {
			return agent.Config{}, err
		}
	}
	if cmd.Flags().Changed("seed") {
		c.Seed = flags.Seed
	}
	return c, nil
}

// setup creates the environments and the agent named by the flags
func setup(cmd *cobra.Command, log zerolog.Logger) (*environment.Vector,
	agent.Agent, error) {
	c, err := config(cmd)
	if err != nil {
		return nil, nil, err
	}

	env, err := environment.NewVector(flags.Envs,
		func(i int) (environment.Environment, error) {
			return cartpole.NewDefault(flags.EpisodeSteps, c.Seed+uint64(i))
		})
	if err != nil {
		return nil, nil, err
	}

	a, err := agent.New(agent.Type(flags.Algo), env, c, log)
	if err != nil {
		return nil, nil, err
	}
	return env, a, nil
}

// checkpointName returns the name checkpoints are saved under
func checkpointName() string {
	return filepath.Join(flags.Out, "checkpoints", flags.Algo)
}
