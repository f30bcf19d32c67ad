// Package cli wires the meetai subcommands.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vango-go/meetai/pkg/gateway/config"
)

type Dependencies struct {
	Logger     *slog.Logger
	LoadConfig func() (config.Config, error)
}

func (d *Dependencies) logger() *slog.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dependencies) loadConfig() (config.Config, error) {
	if d != nil && d.LoadConfig != nil {
		return d.LoadConfig()
	}
	return config.LoadFromEnv()
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetai",
		Short:         "Meeting assistant tooling",
		Long:          "Operate the meeting assistant: run migrations and the summary worker, talk to an agent by voice, or clean markdown for speech.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewMigrateCmd(deps))
	rootCmd.AddCommand(NewWorkerCmd(deps))
	rootCmd.AddCommand(NewVoiceCmd(deps))
	rootCmd.AddCommand(NewCleanCmd())

	return rootCmd
}
