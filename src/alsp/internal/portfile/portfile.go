// Package portfile discovers the language server's dynamically assigned port.
//
// The server advertises its listening port by creating a file in the manager
// directory whose name is the port number. Files older than the reference
// timestamp are leftovers from a previous run and are never returned.
package portfile

import (
	"context"
	"strconv"
	"time"

	"github.com/acornide/assist-lsp/src/alsp/internal/fs"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Discoverer locates the port file written by the language server.
type Discoverer interface {
	// Discover returns the first filename in dir that is a regular file, parses
	// entirely as a base-10 integer, and has a modification time at or after
	// since. ok is false while no such file exists yet; that is the expected
	// state during startup and not an error.
	Discover(dir string, since time.Time) (port int, ok bool, err error)

	// Watch repeatedly checks dir until a port is discovered or ctx is
	// canceled. The returned channel receives at most one port and is then
	// closed. Checks run on a fixed interval; filesystem events wake the check
	// early when available.
	Watch(ctx context.Context, dir string, since time.Time, interval time.Duration) <-chan int
}

// Params define values to be used by the discoverer.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	FS     fs.AlspFS
}

type discoverer struct {
	logger *zap.SugaredLogger
	fs     fs.AlspFS
}

// New creates a Discoverer.
func New(p Params) Discoverer {
	return &discoverer{
		logger: p.Logger.With("component", "portfile"),
		fs:     p.FS,
	}
}

func (d *discoverer) Discover(dir string, since time.Time) (int, bool, error) {
	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		return 0, false, err
	}

	for _, entry := range entries {
		// The name must be digits only, no sign prefix. Ports fit in 16 bits.
		port64, err := strconv.ParseUint(entry.Name(), 10, 16)
		if err != nil || port64 == 0 {
			continue
		}
		port := int(port64)
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().Before(since) {
			// Stale port file from an earlier server run.
			continue
		}
		return port, true, nil
	}

	return 0, false, nil
}

func (d *discoverer) Watch(ctx context.Context, dir string, since time.Time, interval time.Duration) <-chan int {
	found := make(chan int, 1)

	var events chan fsnotify.Event
	var errors chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(dir); err != nil {
			d.logger.Debugw("watching manager directory failed, polling only", "dir", dir, "error", err)
			watcher.Close()
			watcher = nil
		}
	} else {
		d.logger.Debugw("creating filesystem watcher failed, polling only", "error", err)
		watcher = nil
	}
	if watcher != nil {
		events = watcher.Events
		errors = watcher.Errors
	}

	go func() {
		defer close(found)
		if watcher != nil {
			defer watcher.Close()
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if port, ok, err := d.Discover(dir, since); err != nil {
				d.logger.Debugw("scanning manager directory", "dir", dir, "error", err)
			} else if ok {
				found <- port
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-events:
				// A new file appeared; re-check immediately.
			case err := <-errors:
				d.logger.Debugw("filesystem watcher error", "error", err)
			}
		}
	}()

	return found
}
