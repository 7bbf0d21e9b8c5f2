package session

import (
	"context"

	"github.com/mesh-intelligence/playground/internal/generation"
	"github.com/mesh-intelligence/playground/internal/reconcile"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// Iterations returns the current iteration listing.
func (s *Session) Iterations(ctx context.Context) ([]types.Iteration, error) {
	return s.cfg.Source.List(ctx)
}

// Scan reconciles the canvas with the listing once.
func (s *Session) Scan(ctx context.Context) (reconcile.Result, error) {
	return s.loop.Scan(ctx, false)
}

// FetchNow scans and extends the polling window on discovery.
func (s *Session) FetchNow(ctx context.Context) (reconcile.Result, error) {
	return s.loop.FetchNow(ctx)
}

// StartPolling begins adaptive polling. Polling outlives the caller's
// request and ends with the watchdog, StopPolling, or Close.
func (s *Session) StartPolling() {
	s.loop.StartPolling(s.pollCtx)
}

// StopPolling stops adaptive polling.
func (s *Session) StopPolling() {
	s.loop.StopPolling()
}

// Polling reports whether adaptive polling is running.
func (s *Session) Polling() bool {
	return s.loop.Polling()
}

// StartGeneration launches a generation and returns without waiting.
func (s *Session) StartGeneration(ctx context.Context, req generation.Request) (*generation.Run, error) {
	return s.machine.Start(ctx, req)
}

// Generate launches a generation and waits for its terminal event. The
// outcome of a failed or canceled run is returned with a nil error; err is
// set only when the run could not start or ctx ended first.
func (s *Session) Generate(ctx context.Context, req generation.Request) (types.Outcome, error) {
	run, err := s.machine.Start(ctx, req)
	if err != nil {
		return types.Outcome{}, err
	}
	return run.Wait(ctx)
}

// CancelGeneration asks the running generation to stop.
func (s *Session) CancelGeneration() error {
	return s.machine.Cancel()
}

// GenerationStatus returns the lifecycle state.
func (s *Session) GenerationStatus() generation.Status {
	return s.machine.Status()
}

// Delete removes an iteration by iteration id or node id, then re-arranges
// the canvas.
func (s *Session) Delete(ctx context.Context, id string, mode types.DeleteMode) (types.DeleteResult, error) {
	var res types.DeleteResult
	var err error
	s.serial.Do(func() {
		res, err = s.deleter.Delete(ctx, id, mode)
		if len(res.DeletedIDs) > 0 {
			s.arrangeLocked()
		}
	})
	return res, err
}
