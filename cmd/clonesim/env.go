package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/clonesim/internal/config"
	"github.com/nvandessel/clonesim/internal/logging"
	"github.com/nvandessel/clonesim/internal/store"
)

// cliEnv bundles what every command needs: settings, logger and output mode.
type cliEnv struct {
	settings *config.Settings
	logger   *slog.Logger
	jsonOut  bool
	stdout   io.Writer
	stderr   io.Writer
}

func loadEnv(cmd *cobra.Command) (*cliEnv, error) {
	jsonOut, _ := cmd.Flags().GetBool("json")
	configPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	var (
		settings *config.Settings
		err      error
	)
	if configPath != "" {
		settings, err = config.LoadExplicit(configPath)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if level != "" {
		settings.Logging.Level = level
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return &cliEnv{
		settings: settings,
		logger:   logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr()),
		jsonOut:  jsonOut,
		stdout:   cmd.OutOrStdout(),
		stderr:   cmd.ErrOrStderr(),
	}, nil
}

// openStore opens the SQLite store at dbPath, or at the configured path
// when dbPath is empty.
func (e *cliEnv) openStore(dbPath string) (*store.SQLiteRunStore, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = e.settings.StorePath(); err != nil {
			return nil, err
		}
	}
	s, err := store.NewSQLiteRunStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}

// eventLogger returns the lifecycle event log, nil at info level.
func (e *cliEnv) eventLogger() *logging.EventLogger {
	dir, err := e.settings.LogDir()
	if err != nil {
		e.logger.Warn("event log disabled", "error", err)
		return nil
	}
	return logging.NewEventLogger(dir, e.settings.Logging.Level)
}

func (e *cliEnv) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext is cancelled on SIGINT/SIGTERM or when parent is done.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
