// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logging, state database opening and the
// Metabase session so commands only deal with their own work.
package appctx

import (
	"context"
	"fmt"
	"time"

	"github.com/elevate/elevate.metabase.tools/internal/config"
	"github.com/elevate/elevate.metabase.tools/internal/db"
	"github.com/elevate/elevate.metabase.tools/internal/logger"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
	"github.com/elevate/elevate.metabase.tools/internal/store"
	"github.com/spf13/cobra"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Logger is always set
	Logger *logger.Logger

	// DB is the opened state database (nil if NeedsDB is false)
	DB    *db.DB
	Store *store.Store

	// Client talks to Metabase (nil if NeedsAPI is false)
	Client *metabase.Client
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	if a.Logger != nil {
		a.Logger.Close()
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB opens the local state database.
	NeedsDB bool

	// NeedsAPI builds an authenticated Metabase client and checks the
	// session before the command runs. Implies NeedsDB for the token cache.
	NeedsAPI bool
}

// DefaultOptions returns options for commands that talk to Metabase.
func DefaultOptions() Options {
	return Options{NeedsDB: true, NeedsAPI: true}
}

// Offline returns options for commands that only read local files.
func Offline() Options {
	return Options{}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// Resources are released automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	log, err := logger.New(logger.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	app.Logger = log

	if opts.NeedsDB || opts.NeedsAPI {
		database, err := db.OpenAndMigrate(cfg.StatePath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open state database: %w", err)
		}
		app.DB = database
		app.Store = store.New(database)
	}

	if opts.NeedsAPI {
		if err := cfg.Validate(); err != nil {
			app.Close()
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}

		session := metabase.NewSession(metabase.SessionConfig{
			BaseURL:            cfg.URL,
			Username:           cfg.Username,
			Password:           cfg.Password,
			Timeout:            cfg.Timeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			RequestsPerSecond:  cfg.RequestsPerSecond,
			Store:              app.Store.Sessions,
			Logger:             log.Logger,
		})
		app.Client = metabase.NewClient(session)

		// A stale cached token is renewed here rather than halfway through
		// the command.
		if err := app.Client.Ping(app.Context(cmd)); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
		}
	}

	return app, nil
}

// Context returns the command's context, never nil.
func (a *App) Context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// applyFlags overrides configuration with global flags that were set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	str := func(name string, dst *string) {
		if f := cmd.Flag(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	str("url", &cfg.URL)
	str("username", &cfg.Username)
	str("password", &cfg.Password)
	str("state", &cfg.StatePath)
	str("log-level", &cfg.LogLevel)
	str("log-file", &cfg.LogFile)

	if f := cmd.Flag("timeout"); f != nil && f.Changed {
		d, err := time.ParseDuration(f.Value.String())
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if f := cmd.Flag("insecure"); f != nil && f.Changed {
		cfg.InsecureSkipVerify = f.Value.String() == "true"
	}
	return nil
}
