// ABOUTME: Runtime configuration for retroboard parsed from RETRO_* variables with caarlos0/env.
// ABOUTME: .env files fill gaps without overriding the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrInvalidConfig wraps every validation failure from Parse.
var ErrInvalidConfig = errors.New("invalid config")

var boardNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Storage backends accepted by RETRO_STORAGE.
const (
	StorageSqlite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"
)

// Config is the resolved configuration for every retroboard command.
type Config struct {
	Home           string `env:"RETRO_HOME"`
	Board          string `env:"RETRO_BOARD" envDefault:"retro-board"`
	RelayAddr      string `env:"RETRO_RELAY_ADDR" envDefault:"127.0.0.1:7780"`
	RelayURL       string `env:"RETRO_RELAY_URL" envDefault:"ws://127.0.0.1:7780"`
	Storage        string `env:"RETRO_STORAGE" envDefault:"sqlite"`
	SessionMinutes int    `env:"RETRO_SESSION_MINUTES" envDefault:"45"`
	AnswerSync     bool   `env:"RETRO_ANSWER_SYNC" envDefault:"false"`
	Verbose        bool   `env:"RETRO_VERBOSE" envDefault:"false"`
}

// Load reads .env files from the usual locations, overlays the process
// environment and parses the result.
func Load() (Config, error) {
	environ := ReadDotEnvChain(DotEnvPaths()...)
	for k, v := range environMap(os.Environ()) {
		environ[k] = v
	}
	return Parse(environ)
}

// Parse builds a Config from an explicit environment.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Home == "" {
		home, err := DataDir(environ)
		if err != nil {
			return Config{}, err
		}
		cfg.Home = home
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that parse but cannot be used.
func (c Config) Validate() error {
	if !boardNamePattern.MatchString(c.Board) {
		return fmt.Errorf("%w: board name %q must match [A-Za-z0-9._-]{1,64}", ErrInvalidConfig, c.Board)
	}
	switch c.Storage {
	case StorageSqlite, StorageFile, StorageMemory:
	default:
		return fmt.Errorf("%w: storage %q (want sqlite, file or memory)", ErrInvalidConfig, c.Storage)
	}
	if c.SessionMinutes <= 0 {
		return fmt.Errorf("%w: session minutes must be positive, got %d", ErrInvalidConfig, c.SessionMinutes)
	}
	u, err := url.Parse(c.RelayURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: relay url %q must be ws:// or wss://", ErrInvalidConfig, c.RelayURL)
	}
	return nil
}

// BoardURL is the relay websocket URL for the configured board.
func (c Config) BoardURL() string {
	return strings.TrimRight(c.RelayURL, "/") + "/boards/" + url.PathEscape(c.Board) + "/ws"
}

// StorePath is where the board's local replica is persisted for the
// configured backend. Memory storage has no path.
func (c Config) StorePath() string {
	switch c.Storage {
	case StorageSqlite:
		return filepath.Join(c.Home, "boards", c.Board+".db")
	case StorageFile:
		return filepath.Join(c.Home, "boards", c.Board)
	default:
		return ""
	}
}

// SessionLength is the local countdown length.
func (c Config) SessionLength() time.Duration {
	return time.Duration(c.SessionMinutes) * time.Minute
}

func environMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
