// Package cli holds the hrnotify command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nhle/hrnotify/internal/credential"
	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/store"
	"github.com/nhle/hrnotify/internal/theme"
)

// env is shared by all subcommands once the root pre-run has loaded it.
type env struct {
	configPath string
	debug      bool

	cfg     *model.AppConfig
	logFile io.Closer
}

// RootCommand creates and returns the root command. Running it without a
// subcommand starts the terminal UI.
func RootCommand() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "hrnotify",
		Short:         "HR notifications and chat in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logFile != nil {
				_ = e.logFile.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&e.configPath, "config", model.DefaultConfigPath(), "Path to the config file")
	rootCmd.PersistentFlags().BoolVar(&e.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the terminal UI (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.run(cmd.Context())
			},
		},
		loginCommand(e),
		logoutCommand(e),
		statusCommand(e),
	)
	return rootCmd
}

// load reads the config and points the logger at the configured file.
// The terminal UI owns stdout, so logs never go there.
func (e *env) load() error {
	cfg, err := model.LoadConfig(e.configPath)
	if err != nil {
		return err
	}
	e.cfg = cfg

	level := cfg.Log.Level
	if e.debug {
		level = "debug"
	}

	var out io.Writer = io.Discard
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		e.logFile = f
		out = f
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Log.Format, Output: out})
	theme.Apply(cfg.Display.Theme)
	return nil
}

func (e *env) openStore() (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(e.cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.NewSQLiteStore(e.cfg.DBPath)
}

// loadSession returns the stored session with a hint when there is none.
func loadSession(v *credential.Vault) (credential.Session, error) {
	sess, err := v.LoadSession()
	if err != nil {
		if errors.Is(err, credential.ErrNoSession) {
			return credential.Session{}, fmt.Errorf("not logged in, run `hrnotify login` first")
		}
		return credential.Session{}, err
	}
	return sess, nil
}
