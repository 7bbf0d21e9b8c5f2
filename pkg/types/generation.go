package types

import (
	"fmt"
	"time"
)

// GenerationState is the state of the generation lifecycle.
type GenerationState string

// Generation states.
const (
	GenerationIdle       GenerationState = "idle"
	GenerationGenerating GenerationState = "generating"
)

// GenerationInfo describes the active generation.
type GenerationInfo struct {
	ID             string    `json:"id"`
	ParentNodeID   string    `json:"parent_node_id"`
	ComponentName  string    `json:"component_name"`
	Count          int       `json:"count"`
	PlaceholderIDs []string  `json:"placeholder_ids"`
	StartedAt      time.Time `json:"started_at"`
}

// Outcome is the terminal result of one generation run.
type Outcome struct {
	ID       string        `json:"id"`
	Success  bool          `json:"success"`
	Canceled bool          `json:"canceled,omitempty"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
	Err      error         `json:"-"`
}

// Reason returns the failure reason, or "" on success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// FormatDuration renders d as minutes and zero-padded seconds, e.g. "2m:05s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%dm:%02ds", total/60, total%60)
}
