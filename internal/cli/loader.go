package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/soulbound/internal/config"
	"github.com/roach88/soulbound/internal/credential"
	"github.com/roach88/soulbound/internal/engine"
	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
	"github.com/roach88/soulbound/internal/kv/memory"
	"github.com/roach88/soulbound/internal/store"
)

// errNoDurableStore is returned by commands that read the journal or the
// outbox when the configured backend is the in-memory one.
var errNoDurableStore = errors.New("command requires the sqlite or postgres backend")

// Runtime is an opened backend with an engine writing to it.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hasher  ir.Hasher
	Backend kv.Backend
	Engine  *engine.Engine

	// Store is the SQL store behind Backend, or nil for memory.
	Store *store.Store

	// Registry holds the operation metrics when metrics.enabled is set.
	Registry *prometheus.Registry
}

// loadConfig reads the config file and environment, then applies flag
// overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	v := config.New()
	if err := config.Read(v, o.ConfigPath); err != nil {
		return nil, err
	}
	if o.Backend != "" {
		v.Set(config.KeyBackend, o.Backend)
	}
	if o.Database != "" {
		v.Set(config.KeySQLitePath, o.Database)
		if o.Backend == "" {
			v.Set(config.KeyBackend, string(kv.BackendSQLite))
		}
	}
	return config.Decode(v)
}

// newLogger builds the slog handler named by the config. Verbose forces
// debug level.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

// openRuntime opens the configured backend and builds an engine on it.
// For SQL backends the engine journals every call, writes events to the
// outbox and resumes its clock after the last journaled seq.
func openRuntime(ctx context.Context, cfg *config.Config, verbose bool, logOut io.Writer) (*Runtime, error) {
	logger, err := newLogger(cfg, verbose, logOut)
	if err != nil {
		return nil, err
	}
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Logger: logger, Hasher: hasher}

	switch kv.Name(cfg.Backend) {
	case kv.BackendMemory:
		rt.Backend = memory.New()
	case kv.BackendSQLite:
		logger.Debug("opening database", "path", cfg.SQLite.Path)
		if rt.Store, err = store.Open(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		rt.Backend = rt.Store
	case kv.BackendPostgres:
		logger.Debug("connecting to postgres")
		if rt.Store, err = store.OpenPostgres(ctx, cfg.Postgres.DSN); err != nil {
			return nil, err
		}
		rt.Backend = rt.Store
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	svcOpts := []credential.Option{credential.WithHasher(hasher)}
	if cfg.Metrics.Enabled {
		rt.Registry = prometheus.NewRegistry()
		m, err := credential.NewMetrics(rt.Registry)
		if err != nil {
			rt.Close()
			return nil, err
		}
		svcOpts = append(svcOpts, credential.WithObserver(m))
	}

	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithServiceOptions(svcOpts...),
	}
	if rt.Store != nil {
		last, err := rt.Store.LastSeq(ctx)
		if err != nil {
			rt.Close()
			return nil, err
		}
		sinks := credential.MultiSink{rt.Store.Outbox()}
		if verbose {
			sinks = append(sinks, credential.LogSink{Logger: logger})
		}
		engOpts = append(engOpts,
			engine.WithClock(engine.NewClockAt(last)),
			engine.WithJournal(rt.Store),
			engine.WithEventSink(sinks),
		)
	} else if verbose {
		engOpts = append(engOpts, engine.WithEventSink(credential.LogSink{Logger: logger}))
	}
	rt.Engine = engine.New(rt.Backend, engOpts...)
	return rt, nil
}

// requireStore returns the SQL store or errNoDurableStore.
func (r *Runtime) requireStore() (*store.Store, error) {
	if r.Store == nil {
		return nil, errNoDurableStore
	}
	return r.Store, nil
}

// WriteMetrics writes the registry in the Prometheus text format.
// It does nothing when metrics are disabled.
func (r *Runtime) WriteMetrics(w io.Writer) error {
	if r.Registry == nil {
		return nil
	}
	families, err := r.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// Close releases the backend.
func (r *Runtime) Close() error {
	if r.Backend == nil {
		return nil
	}
	return r.Backend.Close()
}

// withRuntime opens the runtime, runs fn and closes the runtime, logging
// a close failure. Startup failures are reported through f.
func withRuntime(ctx context.Context, opts *RootOptions, f *OutputFormatter, fn func(*Runtime) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config: "+err.Error(), err)
	}
	rt, err := openRuntime(ctx, cfg, opts.Verbose, f.errWriter())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeBackend, "failed to open backend: "+err.Error(), err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error("error closing backend", "error", err)
		}
	}()
	return fn(rt)
}
