// ABOUTME: export subcommand: renders a board as Markdown, HTML, YAML or JSON.
// ABOUTME: Reads the local replica store by default, or the relay's mirror with --from-relay.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/export"
	"github.com/2389-research/retroboard/board/store"
)

// ExportFormats lists the accepted --format values.
var ExportFormats = []string{"md", "html", "yaml", "json"}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Format    string
	Output    string
	FromRelay bool
	RelayURL  string
	Title     string
	Column    string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a board",
		Long: `Export a board as Markdown, HTML, YAML or JSON.

By default the board is read from the local replica store. --from-relay reads
the relay's mirror instead.

Example:
  retroboard export --board sprint-12 --format md -o retro.md
  retroboard export --from-relay --format html
  retroboard export --column action --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("relay-url") {
				opts.Config.RelayURL = opts.RelayURL
			}
			if err := opts.validate(); err != nil {
				return err
			}
			return runExport(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "md", "output format (md|html|yaml|json)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.FromRelay, "from-relay", false, "read the relay's mirror instead of the local store")
	cmd.Flags().StringVar(&opts.RelayURL, "relay-url", "", "relay base URL (default: $RETRO_RELAY_URL)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "document title (default: board name)")
	cmd.Flags().StringVar(&opts.Column, "column", "", "export only this column (discuss|done|action)")
	return cmd
}

func isValidExportFormat(format string) bool {
	for _, f := range ExportFormats {
		if f == format {
			return true
		}
	}
	return false
}

func runExport(ctx context.Context, opts *ExportOptions, stdout io.Writer) error {
	if !isValidExportFormat(opts.Format) {
		return wrapExit(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ExportFormats), nil)
	}
	var only core.ColumnName
	if opts.Column != "" {
		col, err := core.ParseColumn(opts.Column)
		if err != nil {
			return wrapExit(ExitCommandError, "invalid --column", err)
		}
		only = col
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var state *core.State
	var err error
	if opts.FromRelay {
		state, err = fetchMirror(ctx, opts.Config.RelayURL, opts.Config.Board)
	} else {
		state, err = loadLocal(ctx, opts.Config.Storage, opts.Config.StorePath())
	}
	if err != nil {
		return wrapExit(ExitFailure, "read board", err)
	}
	if only != "" {
		keepColumn(state, only)
	}

	title := opts.Title
	if title == "" {
		title = opts.Config.Board
	}
	out, err := render(opts.Format, title, state)
	if err != nil {
		return wrapExit(ExitFailure, "render board", err)
	}

	if opts.Output == "" {
		_, err = io.WriteString(stdout, out)
		return err
	}
	if err := os.WriteFile(opts.Output, []byte(out), 0o644); err != nil {
		return wrapExit(ExitFailure, "write export", err)
	}
	return nil
}

func render(format, title string, state *core.State) (string, error) {
	switch format {
	case "html":
		return export.ExportHTML(title, state)
	case "yaml":
		return export.ExportYAML(title, state)
	case "json":
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal board json: %w", err)
		}
		return string(data) + "\n", nil
	default:
		return export.ExportMarkdown(title, state), nil
	}
}

// keepColumn empties every column except col.
func keepColumn(state *core.State, col core.ColumnName) {
	for _, c := range core.Columns {
		if c != col {
			state.Cards.SetColumn(c, nil)
		}
	}
}

func loadLocal(ctx context.Context, backend, path string) (*core.State, error) {
	kv, err := store.Open(backend, path)
	if err != nil {
		return nil, err
	}
	defer kv.Close()
	snap, err := store.NewSnapshots(kv).Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.State, nil
}

// mirrorURL turns the relay's websocket base URL into the HTTP URL of a
// board's mirror.
func mirrorURL(relayURL, board string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/boards/" + url.PathEscape(board)
	return u.String(), nil
}

func fetchMirror(ctx context.Context, relayURL, board string) (*core.State, error) {
	target, err := mirrorURL(relayURL, board)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", target, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	state := core.NewState()
	if err := json.NewDecoder(resp.Body).Decode(state); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	return state, nil
}
