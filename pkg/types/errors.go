package types

import "errors"

// Storage errors.
var (
	ErrDetached        = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// Graph and manifest errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidNode   = errors.New("node payload does not match its kind")
	ErrCycle         = errors.New("parent assignment would create a cycle")
	ErrDuplicateNode = errors.New("node id already on canvas")
)

// Operation errors.
var (
	ErrInvalidDeleteMode    = errors.New("invalid delete mode")
	ErrInvalidCount         = errors.New("iteration count must be positive")
	ErrInvalidFilename      = errors.New("invalid iteration filename")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrNotGenerating        = errors.New("no generation in progress")
	ErrGenerationTarget     = errors.New("subtree contains the active generation target")
	ErrInvalidParent        = errors.New("placeholders need a root or iteration parent")
	ErrNoReparentTarget     = errors.New("iteration has no parent to take its children")
)
