package types

// Iteration modes recorded in an iteration file's metadata.
const (
	ModeLayout = "layout"
	ModeVibe   = "vibe"
)

// Iteration is one entry returned by an iteration listing source.
//
// ID is the iteration's stable identifier (its filename). ParentRef is the
// identifier of the root component the iteration belongs to; SourceRef, when
// set, names the iteration it was derived from.
type Iteration struct {
	ID             string `json:"id"`
	ComponentRef   string `json:"component_ref"`
	IterationIndex int    `json:"iteration_index"`
	ParentRef      string `json:"parent_ref,omitempty"`
	SourceRef      string `json:"source_ref,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Description    string `json:"description,omitempty"`
}

// ManifestEntry is one child to parent record in the tree manifest.
type ManifestEntry struct {
	ID     string `json:"id"`
	Parent string `json:"parent"`
}
