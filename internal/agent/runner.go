// Package agent runs the external code-generation agent as a subprocess.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mesh-intelligence/playground/internal/generation"
	"github.com/mesh-intelligence/playground/internal/schedule"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// DefaultCommand is the agent invocation used when none is configured. The
// prompt is written to its stdin.
var DefaultCommand = []string{"cursor", "agent", "--print", "--force"}

// Chat logs are named chat-<component>-<timestamp>.txt.
const (
	chatPrefix = "chat-"
	chatSuffix = ".txt"
)

var unsafeNameRE = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Options configures a Runner.
type Options struct {
	// Command is the agent argv. "--model <m>" is appended when a request
	// names a model.
	Command []string
	// WorkDir is the agent's working directory.
	WorkDir string
	// TempDir holds chat logs and the lockfile.
	TempDir string
	// KillGrace is how long Cancel waits after SIGTERM before SIGKILL.
	KillGrace time.Duration
	Scheduler schedule.Scheduler
	Logger    *slog.Logger
}

// Runner starts agent processes and implements generation.Job.
type Runner struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]*process
}

type process struct {
	cmd      *exec.Cmd
	file     *os.File
	log      *lockedWriter
	exited   chan struct{}
	canceled bool
}

// NewRunner returns a Runner. Zero options take defaults.
func NewRunner(opts Options) *Runner {
	if len(opts.Command) == 0 {
		opts.Command = DefaultCommand
	}
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(os.TempDir(), "playground")
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = types.DefaultKillGrace
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		opts:   opts,
		logger: logger.With("component", "agent"),
		runs:   make(map[string]*process),
	}
}

// Start spawns the agent for req and returns once it is running. done is
// called exactly once when the process exits. The process is not bound to
// ctx; use Cancel to stop it.
func (r *Runner) Start(ctx context.Context, req generation.JobRequest, done func(generation.JobResult)) error {
	if err := os.MkdirAll(r.opts.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	component := safeName(req.ComponentName)
	now := time.Now()
	logPath := filepath.Join(r.opts.TempDir, fmt.Sprintf("%s%s-%d%s", chatPrefix, component, now.UnixMilli(), chatSuffix))
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create chat log: %w", err)
	}
	writeHeader(logFile, now, component, req)

	args := append([]string(nil), r.opts.Command[1:]...)
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	cmd := exec.Command(r.opts.Command[0], args...)
	cmd.Dir = r.opts.WorkDir
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.WaitDelay = r.opts.KillGrace

	var stdout, stderr bytes.Buffer
	logw := &lockedWriter{w: logFile}
	cmd.Stdout = io.MultiWriter(logw, &stdout)
	cmd.Stderr = io.MultiWriter(&prefixWriter{w: logw, prefix: "[STDERR] "}, &stderr)

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(logFile, "\n=== Error: %v ===\n", err)
		logFile.Close()
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("agent command %q not found in PATH: %w", r.opts.Command[0], err)
		}
		return fmt.Errorf("start agent: %w", err)
	}

	p := &process{cmd: cmd, file: logFile, log: logw, exited: make(chan struct{})}
	r.mu.Lock()
	r.runs[req.RunID] = p
	r.mu.Unlock()

	if err := writeLockfile(r.lockPath(), lockfile{PID: cmd.Process.Pid, ComponentID: component, StartTime: now.UnixMilli()}); err != nil {
		r.logger.Warn("lockfile not written", "error", err)
	}
	r.logger.Info("agent started", "run_id", req.RunID, "pid", cmd.Process.Pid, "component", component, "log", logPath)

	go r.wait(req.RunID, p, &stdout, &stderr, done)
	return nil
}

func (r *Runner) wait(runID string, p *process, stdout, stderr *bytes.Buffer, done func(generation.JobResult)) {
	waitErr := p.cmd.Wait()
	close(p.exited)

	r.mu.Lock()
	delete(r.runs, runID)
	canceled := p.canceled
	r.mu.Unlock()

	code := p.cmd.ProcessState.ExitCode()
	fmt.Fprintf(p.log, "\n=== Generation ended with code %d at %s ===\n", code, time.Now().UTC().Format(time.RFC3339))
	p.file.Close()
	if err := os.Remove(r.lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("lockfile not removed", "error", err)
	}

	res := generation.JobResult{Output: stdout.String(), Canceled: canceled}
	if waitErr != nil && !canceled {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("agent exited with code %d", code)
		}
		res.Err = fmt.Errorf("%s: %w", msg, waitErr)
	}
	r.logger.Info("agent exited", "run_id", runID, "code", code, "canceled", canceled)
	done(res)
}

// Cancel sends SIGTERM to the run's process and SIGKILL after the grace
// period if it has not exited. It returns types.ErrNotGenerating for an
// unknown run.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	p, ok := r.runs[runID]
	if ok {
		p.canceled = true
	}
	r.mu.Unlock()
	if !ok {
		return types.ErrNotGenerating
	}

	fmt.Fprintf(p.log, "\n=== Cancelled at %s ===\n", time.Now().UTC().Format(time.RFC3339))
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal agent: %w", err)
	}
	r.opts.Scheduler.AfterFunc(r.opts.KillGrace, func() {
		select {
		case <-p.exited:
		default:
			r.logger.Warn("agent ignored SIGTERM, killing", "run_id", runID)
			_ = p.cmd.Process.Kill()
		}
	})
	return nil
}

// Close kills every running agent.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.runs {
		p.canceled = true
		_ = p.cmd.Process.Kill()
		r.logger.Info("agent killed on close", "run_id", id)
	}
}

// LatestLog returns the path of the newest chat log.
func (r *Runner) LatestLog() (string, error) {
	entries, err := os.ReadDir(r.opts.TempDir)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("chat log: %w", types.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", r.opts.TempDir, err)
	}

	type logEntry struct {
		name string
		mod  time.Time
	}
	var logs []logEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), chatPrefix) || !strings.HasSuffix(e.Name(), chatSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, logEntry{name: e.Name(), mod: info.ModTime()})
	}
	if len(logs) == 0 {
		return "", fmt.Errorf("chat log: %w", types.ErrNotFound)
	}
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].mod.Equal(logs[j].mod) {
			return logs[i].mod.After(logs[j].mod)
		}
		return logs[i].name > logs[j].name
	})
	return filepath.Join(r.opts.TempDir, logs[0].name), nil
}

func (r *Runner) lockPath() string {
	return filepath.Join(r.opts.TempDir, LockfileName)
}

func writeHeader(w io.Writer, now time.Time, component string, req generation.JobRequest) {
	fmt.Fprintf(w, "=== Generation started at %s ===\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Component: %s\n", component)
	if req.Model != "" {
		fmt.Fprintf(w, "Model: %s\n", req.Model)
	}
	fmt.Fprintf(w, "\n=== Prompt ===\n%s\n\n=== Agent Output ===\n\n", req.Prompt)
}

// safeName makes a component name usable in a file name.
func safeName(name string) string {
	s := unsafeNameRE.ReplaceAllString(name, "_")
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "component"
	}
	return s
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// prefixWriter prefixes each write with a marker.
type prefixWriter struct {
	w      io.Writer
	prefix string
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	if _, err := p.w.Write(append([]byte(p.prefix), b...)); err != nil {
		return 0, err
	}
	return len(b), nil
}
