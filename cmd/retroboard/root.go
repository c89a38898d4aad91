// ABOUTME: Cobra root command for retroboard with relay, join, export and version subcommands.
// ABOUTME: Persistent flags override values loaded from RETRO_* variables and .env files.
package main

import (
	"github.com/spf13/cobra"

	"github.com/2389-research/retroboard/config"
)

// RootOptions holds global flags shared by every command.
type RootOptions struct {
	Home    string
	Board   string
	Verbose bool

	// Config is resolved in PersistentPreRunE.
	Config config.Config
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "retroboard",
		Short: "Replicated retrospective board for the terminal",
		Long: `retroboard is a collaborative retro board: three columns of cards with
votes and stopwatches, kept in sync between participants through a relay.

Start a relay once, then every participant joins the same board:
  retroboard relay --addr 0.0.0.0:7780
  retroboard join --relay-url ws://relay-host:7780 --board sprint-12`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Home, "home", "", "data directory for local boards (default: $RETRO_HOME or $XDG_DATA_HOME/retroboard)")
	cmd.PersistentFlags().StringVarP(&opts.Board, "board", "b", "", "board name (default: $RETRO_BOARD or retro-board)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every envelope")

	cmd.AddCommand(NewRelayCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// resolve loads the environment and applies flags the user set explicitly.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return wrapExit(ExitCommandError, "load config", err)
	}
	flags := cmd.Flags()
	if flags.Changed("home") {
		cfg.Home = o.Home
	}
	if flags.Changed("board") {
		cfg.Board = o.Board
	}
	if flags.Changed("verbose") {
		cfg.Verbose = o.Verbose
	}
	o.Config = cfg
	return nil
}

// validate re-checks the config after command-specific overrides.
func (o *RootOptions) validate() error {
	if err := o.Config.Validate(); err != nil {
		return wrapExit(ExitCommandError, "invalid options", err)
	}
	return nil
}
