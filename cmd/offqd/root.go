package main

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Addr       string
}

// NewRootCommand creates the root command for offqd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "offqd",
		Short:         "offqd - offline mutation queue daemon",
		Long:          "Queues write requests while the backend is unreachable and replays them in order once the network returns.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (env OFFQ_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "http://127.0.0.1:8787", "control API address of a running daemon")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))

	return cmd
}
