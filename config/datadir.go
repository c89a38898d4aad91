// ABOUTME: XDG-based data directory resolution for retroboard local replicas.
// ABOUTME: Checks XDG_DATA_HOME, falls back to ~/.local/share/retroboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDir returns the default home for persisted boards. XDG_DATA_HOME is
// read from environ so callers can resolve it against a merged environment.
func DataDir(environ map[string]string) (string, error) {
	if xdg := environ["XDG_DATA_HOME"]; xdg != "" {
		return filepath.Join(xdg, "retroboard"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "retroboard"), nil
}
