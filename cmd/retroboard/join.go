// ABOUTME: join subcommand: opens the local store, connects to the relay and runs the board TUI.
// ABOUTME: A stored username resumes the session; otherwise the TUI asks for one.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389-research/retroboard/board/bus"
	"github.com/2389-research/retroboard/board/replica"
	"github.com/2389-research/retroboard/board/store"
	"github.com/2389-research/retroboard/config"
	"github.com/2389-research/retroboard/tui"
)

// JoinOptions holds flags for the join command.
type JoinOptions struct {
	*RootOptions
	RelayURL   string
	Storage    string
	Minutes    int
	AnswerSync bool
	Name       string
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JoinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a board in the terminal",
		Long: `Join a board through the relay and open the terminal board.

The local replica is persisted under --home so a restart shows the last known
board and rejoins with the stored username. Logging out from the board
forgets the username.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.apply(cmd)
			if err := opts.validate(); err != nil {
				return err
			}
			return runJoin(opts)
		},
	}

	cmd.Flags().StringVar(&opts.RelayURL, "relay-url", "", "relay base URL (default: $RETRO_RELAY_URL or ws://127.0.0.1:7780)")
	cmd.Flags().StringVar(&opts.Storage, "storage", "", "local storage backend: sqlite, file or memory (default: $RETRO_STORAGE or sqlite)")
	cmd.Flags().IntVar(&opts.Minutes, "minutes", 0, "session countdown length in minutes (default: $RETRO_SESSION_MINUTES or 45)")
	cmd.Flags().BoolVar(&opts.AnswerSync, "answer-sync", false, "answer state requests from late joiners")
	cmd.Flags().StringVar(&opts.Name, "name", "", "join with this username instead of asking")
	return cmd
}

// apply copies explicitly set flags over the loaded config.
func (o *JoinOptions) apply(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("relay-url") {
		o.Config.RelayURL = o.RelayURL
	}
	if flags.Changed("storage") {
		o.Config.Storage = o.Storage
	}
	if flags.Changed("minutes") {
		o.Config.SessionMinutes = o.Minutes
	}
	if flags.Changed("answer-sync") {
		o.Config.AnswerSync = o.AnswerSync
	}
}

// session is everything a joined terminal owns, in teardown order.
type session struct {
	replica  *replica.Replica
	endpoint bus.Endpoint
	kv       store.KV
}

func (s *session) close() {
	if s.replica != nil {
		if err := s.replica.Close(); err != nil {
			log.Printf("component=cli action=close_replica err=%v", err)
		}
	}
	if s.endpoint != nil {
		_ = s.endpoint.Close()
	}
	if s.kv != nil {
		_ = s.kv.Close()
	}
}

// openSession restores the local snapshot, dials the relay and starts a
// replica wired to bridge.
func openSession(ctx context.Context, cfg config.Config, bridge *tui.Bridge) (*session, error) {
	s := &session{}
	kv, err := store.Open(cfg.Storage, cfg.StorePath())
	if err != nil {
		return nil, wrapExit(ExitFailure, "open local store", err)
	}
	s.kv = kv

	snaps := store.NewSnapshots(kv)
	snap, err := snaps.Load(ctx)
	if err != nil {
		s.close()
		return nil, wrapExit(ExitFailure, "load local board", err)
	}

	ep, err := bus.Dial(ctx, cfg.BoardURL())
	if err != nil {
		s.close()
		return nil, wrapExit(ExitFailure, "connect to relay", err)
	}
	s.endpoint = ep

	opts := []replica.Option{
		replica.WithPersistence(snaps),
		replica.WithObserver(bridge.Observe),
		replica.WithTickObserver(bridge.Tick),
		replica.WithVerbose(cfg.Verbose),
	}
	if cfg.AnswerSync {
		opts = append(opts, replica.WithSyncResponder())
	}
	s.replica = replica.New(ep, snap, opts...)
	return s, nil
}

func runJoin(opts *JoinOptions) error {
	cfg := opts.Config
	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		return wrapExit(ExitFailure, "create data directory", err)
	}
	logFile, err := tea.LogToFile(filepath.Join(cfg.Home, "retroboard.log"), "")
	if err != nil {
		return wrapExit(ExitFailure, "open log file", err)
	}
	defer logFile.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bridge := tui.NewBridge(nil)
	sess, err := openSession(ctx, cfg, bridge)
	if err != nil {
		return err
	}
	defer sess.close()

	if err := enter(ctx, sess.replica, opts.Name); err != nil {
		return err
	}
	view, err := sess.replica.View(ctx)
	if err != nil {
		return wrapExit(ExitFailure, "read board", err)
	}

	model := tui.NewAppModel(sess.replica, cfg.Board, view, replica.NewCountdown(time.Now(), cfg.SessionLength()))
	p := tea.NewProgram(model, tea.WithAltScreen())
	bridge.Attach(p.Send)

	// Catch up on anything that changed between View and Attach.
	go func() {
		if v, err := sess.replica.View(context.Background()); err == nil {
			p.Send(tui.ViewMsg{View: v})
		}
	}()

	lost := make(chan struct{})
	if ws, ok := sess.endpoint.(*bus.WSEndpoint); ok {
		go func() {
			<-ws.Done()
			close(lost)
			p.Quit()
		}()
	}

	log.Printf("component=cli action=join board=%s relay=%s storage=%s", cfg.Board, cfg.RelayURL, cfg.Storage)
	if _, err := p.Run(); err != nil {
		return wrapExit(ExitFailure, "terminal ui", err)
	}

	select {
	case <-lost:
		return wrapExit(ExitFailure, "relay connection lost", errors.New(cfg.BoardURL()))
	default:
	}
	return nil
}

// enter joins with an explicit name, or resumes with the stored one. With
// neither, the TUI asks for a name.
func enter(ctx context.Context, r *replica.Replica, name string) error {
	if name != "" {
		if err := r.Join(ctx, name); err != nil {
			return wrapExit(ExitCommandError, fmt.Sprintf("join as %q", name), err)
		}
		return nil
	}
	err := r.Resume(ctx)
	if err == nil || errors.Is(err, replica.ErrNoStoredUsername) {
		return nil
	}
	// A stored name that no longer validates falls back to the dialog.
	log.Printf("component=cli action=resume_failed err=%v", err)
	return nil
}
