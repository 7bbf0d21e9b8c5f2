package types

import (
	"errors"
	"time"
)

// Config holds backend selection and the directories the playground works on.
type Config struct {
	Backend       string `json:"backend" yaml:"backend"`
	DataDir       string `json:"data_dir" yaml:"data_dir"`
	IterationsDir string `json:"iterations_dir" yaml:"iterations_dir"`
}

// Supported backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendFile:   true,
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	return nil
}

// Timing defaults shared by the reconciliation loop and the generation
// lifecycle.
const (
	DefaultPollInterval         = 10 * time.Second
	DefaultPollWindow           = 120 * time.Second
	DefaultScanGrace            = 1 * time.Second
	DefaultArrangeDelay         = 100 * time.Millisecond
	DefaultPostScanArrangeDelay = 200 * time.Millisecond
	DefaultKillGrace            = 2 * time.Second
)
