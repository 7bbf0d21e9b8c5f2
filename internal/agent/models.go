package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultModelsCommand lists the models the agent accepts.
var DefaultModelsCommand = []string{"cursor", "agent", "models"}

// Model caching and lookup limits.
const (
	ModelsCacheTTL = 5 * time.Minute
	modelsTimeout  = 15 * time.Second
)

// modelLineRE matches "id - Label" lines with optional (default) or (current)
// annotations.
var modelLineRE = regexp.MustCompile(`^(\S+)\s+-\s+(.+?)(?:\s+\((?:default|current)\))*\s*$`)

// ErrNoModels is returned when the models command lists nothing parseable.
var ErrNoModels = errors.New("no models listed by agent")

// Model is one selectable agent model. The empty Value means the agent's
// default.
type Model struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ModelLister runs the models command and caches its result.
type ModelLister struct {
	command []string
	now     func() time.Time

	mu      sync.Mutex
	cached  []Model
	fetched time.Time
}

// NewModelLister returns a lister for command. An empty command uses
// DefaultModelsCommand; a nil now uses time.Now.
func NewModelLister(command []string, now func() time.Time) *ModelLister {
	if len(command) == 0 {
		command = DefaultModelsCommand
	}
	if now == nil {
		now = time.Now
	}
	return &ModelLister{command: command, now: now}
}

// Models returns the available models and whether they came from the cache.
func (l *ModelLister) Models(ctx context.Context) ([]Model, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && l.now().Sub(l.fetched) < ModelsCacheTTL {
		return append([]Model(nil), l.cached...), true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, modelsTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, l.command[0], l.command[1:]...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, false, fmt.Errorf("list models: %s: %w", msg, err)
		}
		return nil, false, fmt.Errorf("list models: %w", err)
	}

	models := ParseModels(string(out))
	if len(models) <= 1 {
		return nil, false, ErrNoModels
	}
	l.cached = models
	l.fetched = l.now()
	return append([]Model(nil), models...), false, nil
}

// ParseModels parses models command output. The result always starts with
// the agent's default model.
func ParseModels(out string) []Model {
	models := []Model{{Value: "", Label: "Auto (Default)"}}
	for _, line := range strings.Split(out, "\n") {
		m := modelLineRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		models = append(models, Model{Value: m[1], Label: strings.TrimSpace(m[2])})
	}
	return models
}
