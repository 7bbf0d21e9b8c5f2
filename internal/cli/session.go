package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mesh-intelligence/playground/internal/agent"
	"github.com/mesh-intelligence/playground/internal/iterations"
	"github.com/mesh-intelligence/playground/internal/session"
	"github.com/mesh-intelligence/playground/internal/store"
)

// workspace is an open store, iteration source, agent runner, and session.
type workspace struct {
	backend store.Backend
	source  *iterations.DirSource
	runner  *agent.Runner
	session *session.Session
}

// openWorkspace attaches the configured backend and opens a session on it.
// The caller must call close.
func (a *app) openWorkspace(ctx context.Context) (*workspace, error) {
	s := a.settings
	backend, err := store.Open(s.Store)
	if err != nil {
		return nil, sysError(err)
	}

	w := &workspace{
		backend: backend,
		source:  iterations.NewDirSource(s.Store.IterationsDir, a.logger),
		runner: agent.NewRunner(agent.Options{
			Command:   s.AgentCommand,
			WorkDir:   s.AgentWorkDir,
			TempDir:   s.TempDir,
			KillGrace: s.KillGrace,
			Logger:    a.logger,
		}),
	}
	w.session, err = session.Open(ctx, session.Config{
		Store:        backend,
		Source:       w.source,
		Job:          w.runner,
		Logger:       a.logger,
		PollInterval: s.PollInterval,
		PollWindow:   s.PollWindow,
		ScanGrace:    s.ScanGrace,
	})
	if err != nil {
		w.runner.Close()
		return nil, errors.Join(sysError(fmt.Errorf("open session: %w", err)), backend.Detach())
	}
	return w, nil
}

// close saves the session and detaches the backend.
func (w *workspace) close() error {
	w.session.Close()
	w.runner.Close()
	return w.backend.Detach()
}

// printJSON writes v as indented JSON.
func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// ensureDir creates dir when it does not exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sysError(fmt.Errorf("create %s: %w", dir, err))
	}
	return nil
}
