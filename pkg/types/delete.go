package types

import "fmt"

// DeleteMode selects how the children of a deleted node are handled.
type DeleteMode string

// Delete modes.
const (
	DeleteCascade  DeleteMode = "cascade"
	DeleteReparent DeleteMode = "reparent"
)

// ParseDeleteMode converts s to a DeleteMode. An empty string means cascade.
func ParseDeleteMode(s string) (DeleteMode, error) {
	switch DeleteMode(s) {
	case "", DeleteCascade:
		return DeleteCascade, nil
	case DeleteReparent:
		return DeleteReparent, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidDeleteMode)
}

// DeleteResult lists the ids removed by a delete. Cascade reports every
// removed id; reparent reports only the target.
type DeleteResult struct {
	DeletedIDs []string `json:"deleted_ids"`
}
