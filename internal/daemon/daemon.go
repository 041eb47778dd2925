// Package daemon composes the long-running service: the job store, the
// orchestrator, and the HTTP API, guarded by a file lock that enforces a
// single instance per data directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidsight/internal/api"
	"vidsight/internal/config"
	"vidsight/internal/jobs"
	"vidsight/internal/logging"
	"vidsight/internal/orchestrator"
	"vidsight/internal/staging"
)

// stagingMaxAge bounds how long a staging directory can outlive its job
// before the startup sweep reclaims it.
const stagingMaxAge = 48 * time.Hour

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *jobs.Store
	orchestrator *orchestrator.Manager
	apiServer    *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, orch *orchestrator.Manager, server *api.Server, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || server == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, api server, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "vidsightd.lock")
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		orchestrator: orch,
		apiServer:    server,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the orchestrator and API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidsight daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	staging.CleanStale(d.cfg.Paths.StagingDir, stagingMaxAge, d.logger)

	if err := d.orchestrator.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := d.apiServer.Start(runCtx); err != nil {
		d.orchestrator.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.apiServer.Addr()))
	return nil
}

// Stop halts the API, drains the orchestrator, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.apiServer.Stop()
	d.orchestrator.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether the daemon's services are up.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockPath returns the instance lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
