package agent

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/playground/internal/generation"
	"github.com/mesh-intelligence/playground/internal/schedule"
	"github.com/mesh-intelligence/playground/pkg/types"
)

func newRunner(t *testing.T, command ...string) *Runner {
	t.Helper()
	r := NewRunner(Options{
		Command:   command,
		TempDir:   t.TempDir(),
		KillGrace: 200 * time.Millisecond,
	})
	t.Cleanup(r.Close)
	return r
}

func start(t *testing.T, r *Runner, req generation.JobRequest) <-chan generation.JobResult {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}
	results := make(chan generation.JobResult, 2)
	require.NoError(t, r.Start(context.Background(), req, func(res generation.JobResult) { results <- res }))
	return results
}

func await(t *testing.T, results <-chan generation.JobResult) generation.JobResult {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not finish")
		return generation.JobResult{}
	}
}

func TestRunnerSuccess(t *testing.T) {
	r := newRunner(t, "sh", "-c", "cat; echo; echo wrote 2 files")
	res := await(t, start(t, r, generation.JobRequest{
		RunID:         "run-1",
		ComponentName: "PricingCard",
		Prompt:        "make two variants",
	}))

	require.NoError(t, res.Err)
	assert.False(t, res.Canceled)
	assert.Contains(t, res.Output, "make two variants")
	assert.Contains(t, res.Output, "wrote 2 files")

	logPath, err := r.LatestLog()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(logPath), "chat-PricingCard-"))
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "=== Prompt ===\nmake two variants")
	assert.Contains(t, string(data), "wrote 2 files")
	assert.Contains(t, string(data), "Generation ended with code 0")

	_, err = os.Stat(filepath.Join(r.opts.TempDir, LockfileName))
	assert.True(t, os.IsNotExist(err), "lockfile removed after exit")
}

func TestRunnerFailureCarriesStderr(t *testing.T) {
	r := newRunner(t, "sh", "-c", "echo quota exceeded >&2; exit 3")
	res := await(t, start(t, r, generation.JobRequest{RunID: "run-1", ComponentName: "Card"}))

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "quota exceeded")
	assert.False(t, res.Canceled)

	logPath, err := r.LatestLog()
	require.NoError(t, err)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[STDERR] quota exceeded")
}

func TestRunnerAppendsModel(t *testing.T) {
	r := newRunner(t, "sh", "-c", `echo "$@"`, "sh")
	res := await(t, start(t, r, generation.JobRequest{RunID: "run-1", ComponentName: "Card", Model: "fast-1"}))

	require.NoError(t, res.Err)
	assert.Equal(t, "--model fast-1\n", res.Output)
}

func TestRunnerCancel(t *testing.T) {
	r := newRunner(t, "sh", "-c", "exec sleep 30")
	results := start(t, r, generation.JobRequest{RunID: "run-1", ComponentName: "Card"})

	_, err := os.Stat(filepath.Join(r.opts.TempDir, LockfileName))
	require.NoError(t, err, "lockfile written while running")

	require.NoError(t, r.Cancel("run-1"))
	res := await(t, results)
	assert.True(t, res.Canceled)
	assert.NoError(t, res.Err)

	assert.ErrorIs(t, r.Cancel("run-1"), types.ErrNotGenerating)
}

func TestRunnerCancelUnknown(t *testing.T) {
	r := newRunner(t, "true")
	assert.ErrorIs(t, r.Cancel("nope"), types.ErrNotGenerating)
}

func TestRunnerStartFailure(t *testing.T) {
	r := newRunner(t, "playground-agent-that-does-not-exist")
	err := r.Start(context.Background(), generation.JobRequest{RunID: "run-1"}, func(generation.JobResult) {
		t.Error("done must not be called when Start fails")
	})
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestLatestLogEmpty(t *testing.T) {
	r := NewRunner(Options{TempDir: filepath.Join(t.TempDir(), "absent")})
	_, err := r.LatestLog()
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "pricing-card", safeName("pricing-card"))
	assert.Equal(t, "___etc_passwd", safeName("../etc/passwd"))
	assert.Equal(t, "component", safeName(""))
}

func TestCleanupStale(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}
	clock := schedule.NewFake(time.Now())
	r := NewRunner(Options{TempDir: t.TempDir(), Scheduler: clock})

	orphan := exec.Command("sleep", "30")
	require.NoError(t, orphan.Start())
	exited := make(chan error, 1)
	go func() { exited <- orphan.Wait() }()

	lock := filepath.Join(r.opts.TempDir, LockfileName)
	require.NoError(t, writeLockfile(lock, lockfile{PID: orphan.Process.Pid, ComponentID: "card", StartTime: time.Now().UnixMilli()}))

	pid, err := r.CleanupStale()
	require.NoError(t, err)
	assert.Equal(t, orphan.Process.Pid, pid)

	select {
	case <-exited:
	case <-time.After(10 * time.Second):
		t.Fatal("orphan not terminated")
	}
	_, err = os.Stat(lock)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupStaleIgnoresGarbage(t *testing.T) {
	r := NewRunner(Options{TempDir: t.TempDir()})

	pid, err := r.CleanupStale()
	require.NoError(t, err)
	assert.Zero(t, pid, "no lockfile")

	lock := filepath.Join(r.opts.TempDir, LockfileName)
	require.NoError(t, os.WriteFile(lock, []byte("not json"), 0o644))
	pid, err = r.CleanupStale()
	require.NoError(t, err)
	assert.Zero(t, pid)
	_, err = os.Stat(lock)
	assert.True(t, os.IsNotExist(err))
}

func TestLockfileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockfileName)
	require.NoError(t, writeLockfile(path, lockfile{PID: 42, ComponentID: "card", StartTime: 1700000000000}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"pid": float64(42), "component_id": "card", "start_time": float64(1700000000000)}, got)
}
