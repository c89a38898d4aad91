// ABOUTME: relay subcommand: serves the websocket relay and board mirror until interrupted.
// ABOUTME: SIGINT and SIGTERM trigger a graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389-research/retroboard/web"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Addr string
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the websocket relay",
		Long: `Run the relay that fans board envelopes out between participants.

The relay keeps one hub per board name and never originates envelopes. It
also mirrors each board read-only:
  GET /boards/{board}              board state as JSON
  GET /boards/{board}/export.md    Markdown export (also .html, .yaml)
  GET /boards/{board}/events       server-sent event stream`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), opts, cmd.Flags().Changed("addr"))
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default: $RETRO_RELAY_ADDR or 127.0.0.1:7780)")
	return cmd
}

func runRelay(parent context.Context, opts *RelayOptions, addrSet bool) error {
	cfg := opts.Config
	if addrSet {
		cfg.RelayAddr = opts.Addr
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(web.ServerConfig{Addr: cfg.RelayAddr, Verbose: cfg.Verbose})
	fmt.Fprintf(os.Stderr, "relay listening on %s\n", cfg.RelayAddr)
	if err := srv.ListenAndServe(ctx); err != nil {
		return wrapExit(ExitFailure, "relay stopped", err)
	}
	return nil
}
