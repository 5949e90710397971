package serversession

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/acornide/assist-lsp/src/alsp/entity"
	"github.com/acornide/assist-lsp/src/alsp/internal/launcher"
)

const _startMarkerFile = "start"

// Start launches a new language server generation. Any previous generation is
// torn down first, so concurrent calls always converge on a single instance.
func (c *controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
	return c.startLocked(ctx)
}

func (c *controller) startLocked(ctx context.Context) error {
	c.teardownLocked()

	if c.creds.APIKey(ctx) == "" {
		// Defer the launch until a credential appears; no generation is
		// burned while waiting.
		c.logger.Infow("no credential available, deferring language server launch",
			"retry_in", c.cfg.credentialRetryDelay)
		c.credRetry = time.AfterFunc(c.cfg.credentialRetryDelay, c.retryDeferredStart)
		return nil
	}

	gen := c.gens.Inc()
	c.session.Generation = gen
	genCtx, genCancel := context.WithCancel(context.Background())
	c.genCancel = genCancel

	managerDir, startedAt, err := c.prepareManagerDir()
	if err != nil {
		// Treated like a spawn failure: report and retry after the fixed
		// delay. Generation-level faults never propagate to the app.
		c.logger.Warnw("preparing manager directory failed", "generation", gen, "error", err)
		c.stats.Counter("launch_fail").Inc(1)
		c.ideGateway.Error(ctx, "preparing language server manager directory failed", err.Error())
		c.scheduleRestartLocked(gen)
		return nil
	}

	args := []string{
		"--api_server_url", c.cfg.apiServerURL,
		"--manager_dir", managerDir,
		"--file_watch_max_dir_count", strconv.Itoa(c.cfg.fileWatchMaxDirCount),
	}
	args = append(args, c.cfg.featureFlags...)

	handle := c.launcher.Start(launcher.Spec{
		Path: c.cfg.executablePath,
		Args: args,
		Env:  c.cfg.env,
		OnExit: func(err error) {
			// Exit callbacks may fire while Start still holds the lock.
			go c.onProcessExit(gen, err)
		},
		OnOutput: func(line string) {
			c.logger.Debugw("language server output", "generation", gen, "line", line)
		},
	})
	c.handle = handle
	c.stats.Counter("launch").Inc(1)
	c.logger.Infow("language server launched", "generation", gen, "pid", handle.Pid())
	c.infoFile.UpdateField("pid", strconv.Itoa(handle.Pid()))
	c.infoFile.UpdateField("state", "starting")

	go c.awaitPort(genCtx, gen, managerDir, startedAt)
	return nil
}

// Shutdown tears down the current generation. No restart is scheduled.
func (c *controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.closed = true
	c.infoFile.UpdateField("state", "stopped")
	c.logger.Infow("session shut down")
	return nil
}

// teardownLocked invalidates the current generation: timers are disarmed, the
// generation context is canceled, the pending completion is resolved as
// canceled, and the subprocess is detached and killed.
func (c *controller) teardownLocked() {
	if c.credRetry != nil {
		c.credRetry.Stop()
		c.credRetry = nil
	}
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	if c.genCancel != nil {
		c.genCancel()
		c.genCancel = nil
	}
	c.mux.CancelPending()
	if c.handle != nil {
		c.handle.Shutdown()
		c.handle = nil
	}
	c.session.Generation = entity.GenerationNone
	c.session.Port = 0
	c.session.Healthy = false
}

// retryDeferredStart re-enters Start once the credential retry timer fires.
func (c *controller) retryDeferredStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.startLocked(context.Background())
}

// prepareManagerDir ensures the manager directory exists and writes the start
// marker whose modification time anchors port discovery.
func (c *controller) prepareManagerDir() (string, time.Time, error) {
	dir := c.cfg.managerDirectory
	if dir == "" {
		tmp, err := c.fs.MkdirTemp("", "alsp-manager-")
		if err != nil {
			return "", time.Time{}, fmt.Errorf("creating temp manager directory: %w", err)
		}
		dir = tmp
	} else if err := c.fs.MkdirAll(dir); err != nil {
		return "", time.Time{}, fmt.Errorf("creating manager directory %q: %w", dir, err)
	}

	marker := filepath.Join(dir, _startMarkerFile)
	if err := c.fs.WriteFile(marker, []byte(time.Now().Format(time.RFC3339Nano))); err != nil {
		return "", time.Time{}, fmt.Errorf("writing start marker: %w", err)
	}

	startedAt := time.Now()
	if info, err := c.fs.Stat(marker); err == nil {
		startedAt = info.ModTime()
	}
	return dir, startedAt, nil
}

// awaitPort waits for the server to publish its port, then records it and
// begins the heartbeat loop. The watch ends with the generation.
func (c *controller) awaitPort(ctx context.Context, gen int64, managerDir string, startedAt time.Time) {
	port, ok := <-c.discoverer.Watch(ctx, managerDir, startedAt, c.cfg.portPollInterval)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.closed || c.session.Generation != gen {
		// A newer generation took over while this watch was in flight.
		c.mu.Unlock()
		return
	}
	c.session.Port = port
	c.mu.Unlock()

	c.logger.Infow("language server ready", "generation", gen, "port", port)
	c.infoFile.UpdateField("port", strconv.Itoa(port))
	c.infoFile.UpdateField("state", "ready")

	go c.runHeartbeat(ctx, gen)
}

// onProcessExit handles abnormal termination of the subprocess. Deliberate
// shutdowns never arrive here because teardown detaches the exit callback
// before killing the process.
func (c *controller) onProcessExit(gen int64, err error) {
	c.mu.Lock()
	if c.closed || c.session.Generation != gen {
		c.mu.Unlock()
		return
	}

	c.session.Healthy = false
	c.session.Port = 0
	if c.genCancel != nil {
		c.genCancel()
		c.genCancel = nil
	}
	c.mux.CancelPending()
	c.handle = nil
	c.scheduleRestartLocked(gen)
	c.mu.Unlock()

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	c.stats.Counter("crash").Inc(1)
	c.infoFile.UpdateField("state", "crashed")
	c.ideGateway.Warn(context.Background(), "language server exited unexpectedly, restarting", detail)
}

func (c *controller) scheduleRestartLocked(gen int64) {
	c.restartTimer = time.AfterFunc(c.cfg.restartDelay, func() {
		c.restartAfterCrash(gen)
	})
}

func (c *controller) restartAfterCrash(gen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.session.Generation != gen {
		return
	}
	c.logger.Infow("restarting language server after crash", "previous_generation", gen)
	c.startLocked(context.Background())
}
