// Package launcher owns the language server subprocess for one generation.
package launcher

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Spec describes a subprocess launch.
type Spec struct {
	// Path is the externally resolved executable path.
	Path string
	// Args is the full argument vector, excluding the executable itself.
	Args []string
	// Env entries overlay the parent environment.
	Env map[string]string
	// OnExit is invoked exactly once when the process terminates. err is
	// non-nil for abnormal termination (spawn failure, non-zero exit, signal)
	// and never delivered after Shutdown has detached the handle.
	OnExit func(err error)
	// OnOutput receives stdout/stderr lines for diagnostic logging.
	// Best-effort; may be nil.
	OnOutput func(line string)
}

// Handle controls a launched subprocess.
type Handle interface {
	// Shutdown detaches OnExit and forcibly terminates the process if it is
	// still running. Best-effort and non-blocking.
	Shutdown()
	// Pid returns the process id, or 0 if the process never started.
	Pid() int
}

// Launcher starts supervised subprocesses. Restart policy lives with the
// caller; this layer reports each termination once and does nothing further.
type Launcher interface {
	Start(spec Spec) Handle
}

// Params define values to be used by the launcher.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
}

type launcherImpl struct {
	logger *zap.SugaredLogger
}

// New creates a Launcher.
func New(p Params) Launcher {
	return &launcherImpl{
		logger: p.Logger.With("component", "launcher"),
	}
}

func (l *launcherImpl) Start(spec Spec) Handle {
	h := &handle{
		onExit: spec.OnExit,
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = overlayEnv(os.Environ(), spec.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.reportExit(fmt.Errorf("preparing stdout pipe: %w", err))
		return h
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		h.reportExit(fmt.Errorf("preparing stderr pipe: %w", err))
		return h
	}

	l.logger.Infow("launching language server", "path", spec.Path, "args", spec.Args)
	if err := cmd.Start(); err != nil {
		h.reportExit(fmt.Errorf("spawning %q: %w", spec.Path, err))
		return h
	}
	h.setCmd(cmd)

	go streamLines(stdout, spec.OnOutput)
	go streamLines(stderr, spec.OnOutput)

	go func() {
		err := cmd.Wait()
		if err != nil {
			err = fmt.Errorf("language server exited: %w", err)
		}
		h.reportExit(err)
	}()

	return h
}

type handle struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	onExit func(error)
	exited bool
}

func (h *handle) setCmd(cmd *exec.Cmd) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmd = cmd
}

// reportExit delivers the exit callback at most once.
func (h *handle) reportExit(err error) {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return
	}
	h.exited = true
	cb := h.onExit
	h.onExit = nil
	h.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

func (h *handle) Shutdown() {
	h.mu.Lock()
	// Detach first so a deliberate shutdown is never misreported as a crash.
	h.onExit = nil
	cmd := h.cmd
	h.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

func (h *handle) Pid() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func streamLines(r io.Reader, onOutput func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onOutput != nil {
			onOutput(scanner.Text())
		}
	}
}

func overlayEnv(base []string, overlay map[string]string) []string {
	env := make([]string, len(base), len(base)+len(overlay))
	copy(env, base)
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}
