package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/ZebulonRouseFrantzich/promctl/internal/journal"
	"github.com/ZebulonRouseFrantzich/promctl/internal/logging"
)

// maxLineSize bounds one forwarded output line.
const maxLineSize = 1024 * 1024

// Supervisor owns one child process and its session config file.
type Supervisor struct {
	opts    Options
	logger  logging.Logger
	journal journal.Journaler

	// startMu serializes Start so that concurrent callers spawn one child.
	startMu sync.Mutex

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	pid      int
	exitCode int
	stopping bool // Stop signalled a running child
	stopped  bool // Stop ended the supervisor
	lastErr  error

	done     chan struct{} // closed on exit or Stop
	doneOnce sync.Once
	reaped   chan struct{} // closed once the child has been waited for
}

// New creates a Supervisor in StateNotStarted. Nothing is spawned.
func New(opts Options) (*Supervisor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.ListenHost == "" {
		opts.ListenHost = DefaultListenHost
	}
	opts.Retention = opts.Retention.withDefaults()

	return &Supervisor{
		opts:     opts,
		logger:   logging.OrNop(opts.Logger),
		journal:  journal.OrDiscard(opts.Journal),
		exitCode: -1,
		done:     make(chan struct{}),
		reaped:   make(chan struct{}),
	}, nil
}

// ListenAddress returns the host:port passed to --web.listen-address.
func (s *Supervisor) ListenAddress() string {
	return net.JoinHostPort(s.opts.ListenHost, strconv.Itoa(s.opts.Port))
}

// Args returns the command line arguments given to the child.
func (s *Supervisor) Args() []string {
	r := s.opts.Retention
	return []string{
		"--web.listen-address", s.ListenAddress(),
		"--config.file", s.opts.ConfigPath,
		"--storage.tsdb.path", s.opts.DataDir,
		"--storage.tsdb.retention.time", r.Time,
		"--storage.tsdb.retention.size", r.Size,
		"--storage.tsdb.min-block-duration", r.MinBlockDuration,
		"--storage.tsdb.max-block-duration", r.MaxBlockDuration,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the child's process ID, or 0 before it was spawned.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// ExitCode returns the child's exit code. It is -1 while the child runs, when
// it never ran, and when it was ended by a signal.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Err returns the error the child exited with, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stopped reports whether Stop ended the supervisor, as opposed to the child
// exiting on its own.
func (s *Supervisor) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Done is closed when the child exits or Stop is called.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Reaped is closed once a spawned child has actually terminated. It never
// closes if nothing was spawned.
func (s *Supervisor) Reaped() <-chan struct{} {
	return s.reaped
}

func (s *Supervisor) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Start resolves the binary and spawns the child. It is a no-op while
// Running and returns ErrExited once Exited. Binary resolution errors are
// returned unchanged; spawn failures are *SpawnError and leave the
// supervisor NotStarted.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	switch s.State() {
	case StateRunning:
		return nil
	case StateExited:
		return ErrExited
	}

	path, err := s.opts.Resolver.EnsureBinary(ctx, s.opts.Descriptor)
	if err != nil {
		return err
	}

	if _, err := os.Stat(s.opts.ConfigPath); err != nil {
		return s.spawnFailed(path, fmt.Errorf("session config: %w", err))
	}

	cmd := exec.Command(path, s.Args()...)
	cmd.Env = append([]string{}, s.opts.Env...)
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.spawnFailed(path, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.spawnFailed(path, err)
	}

	s.mu.Lock()
	if s.state == StateExited {
		// Stopped while the binary was being resolved.
		s.mu.Unlock()
		return ErrExited
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return s.spawnFailed(path, err)
	}
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("prometheus started",
		"owner", s.opts.Owner,
		"pid", s.pid,
		"listen", s.ListenAddress())
	s.journal.Write(&journal.EventProcessSpawned{
		Owner:  s.opts.Owner,
		PID:    s.pid,
		Binary: path,
		Listen: s.ListenAddress(),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go s.forward(&wg, stdout, "stdout", s.logger.Debug)
	go s.forward(&wg, stderr, "stderr", s.logger.Warn)
	go s.observe(&wg, cmd)

	return nil
}

func (s *Supervisor) spawnFailed(path string, err error) error {
	s.logger.Error("failed to spawn prometheus", "owner", s.opts.Owner, "binary", path, "error", err)
	s.journal.Write(&journal.EventProcessSpawnError{
		Owner:  s.opts.Owner,
		Binary: path,
		Reason: err.Error(),
	})
	return &SpawnError{Binary: path, Err: err}
}

func (s *Supervisor) forward(wg *sync.WaitGroup, r io.Reader, stream string, log func(string, ...interface{})) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		log("prometheus "+stream, "owner", s.opts.Owner, "line", scanner.Text())
	}
	// Drain whatever is left so the child never blocks on a full pipe.
	io.Copy(io.Discard, r)
}

// observe waits for the child and records how it ended.
func (s *Supervisor) observe(wg *sync.WaitGroup, cmd *exec.Cmd) {
	// Wait must not be called before the pipes are drained.
	wg.Wait()
	waitErr := cmd.Wait()

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	expected := s.stopping
	s.exitCode = code
	s.state = StateExited
	s.lastErr = waitErr
	pid := s.pid
	s.mu.Unlock()

	ev := &journal.EventProcessExited{
		Owner:    s.opts.Owner,
		PID:      pid,
		ExitCode: code,
		Expected: expected,
	}
	if waitErr != nil {
		ev.Error = waitErr.Error()
	}

	if expected {
		s.logger.Debug("prometheus exited after stop", "owner", s.opts.Owner, "pid", pid, "code", code)
	} else {
		s.logger.Error(fmt.Sprintf("prometheus %s exited with code %d", s.opts.Owner, code),
			"owner", s.opts.Owner,
			"pid", pid,
			"code", code,
			"error", waitErr)
	}
	s.journal.Write(ev)

	close(s.reaped)
	s.finish()
}

// Stop signals the child's process group and deletes the session config. It
// returns immediately, never fails, and may be called in any state any
// number of times.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	prev := s.state
	s.state = StateExited
	if prev != StateExited {
		s.stopped = true
	}
	var proc *os.Process
	if prev == StateRunning {
		s.stopping = true
		proc = s.cmd.Process
	}
	pid := s.pid
	s.mu.Unlock()

	if proc != nil {
		s.logger.Debug("stopping prometheus", "owner", s.opts.Owner, "pid", pid)
		if err := terminate(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn("failed to signal prometheus", "owner", s.opts.Owner, "pid", pid, "error", err)
		}
		if s.opts.StopGracePeriod > 0 {
			go s.escalate(proc, pid)
		}
	}

	s.removeConfig()

	if prev != StateExited {
		s.journal.Write(&journal.EventProcessStopped{
			Owner:      s.opts.Owner,
			PID:        pid,
			ConfigFile: s.opts.ConfigPath,
		})
	}

	s.finish()
}

func (s *Supervisor) escalate(proc *os.Process, pid int) {
	t := time.NewTimer(s.opts.StopGracePeriod)
	defer t.Stop()

	select {
	case <-s.reaped:
	case <-t.C:
		s.logger.Warn("prometheus ignored SIGTERM, killing",
			"owner", s.opts.Owner,
			"pid", pid,
			"grace", s.opts.StopGracePeriod)
		if err := kill(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn("failed to kill prometheus", "owner", s.opts.Owner, "pid", pid, "error", err)
		}
	}
}

func (s *Supervisor) removeConfig() {
	err := os.Remove(s.opts.ConfigPath)
	switch {
	case err == nil:
		s.logger.Debug("deleted session config", "path", s.opts.ConfigPath)
	case errors.Is(err, os.ErrNotExist):
		s.logger.Debug("session config already removed", "path", s.opts.ConfigPath)
	default:
		s.logger.Warn("failed to delete session config", "path", s.opts.ConfigPath, "error", err)
	}
}
