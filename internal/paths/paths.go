// Package paths resolves configuration, data, and iteration directory
// locations.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// CWD-relative directory names.
const (
	DefaultDataDirName       = ".playground"
	DefaultIterationsDirName = "src/app/playground/iterations"
	appName                  = "playground"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir     = "PLAYGROUND_CONFIG_DIR"
	EnvDataDir       = "PLAYGROUND_DATA_DIR"
	EnvIterationsDir = "PLAYGROUND_ITERATIONS_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/playground (fallback ~/.config/playground)
// macOS:   ~/Library/Application Support/playground
// Windows: %APPDATA%/playground
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// DefaultDataDir returns the platform-specific data directory used when the
// playground runs outside a project.
//
// Linux:   $XDG_DATA_HOME/playground (fallback ~/.local/share/playground)
// macOS:   ~/Library/Application Support/playground
// Windows: %APPDATA%/playground
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

func xdgDir(env, fallback string) (string, error) {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, appName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > PLAYGROUND_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > configYAMLValue > PLAYGROUND_DATA_DIR env > $(CWD)/.playground.
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	return resolve(flag, configYAMLValue, EnvDataDir, DefaultDataDirName)
}

// ResolveIterationsDir returns the iterations directory following the same
// chain as ResolveDataDir with PLAYGROUND_ITERATIONS_DIR and a CWD-relative
// default under src/app/playground.
func ResolveIterationsDir(flag, configYAMLValue string) (string, error) {
	return resolve(flag, configYAMLValue, EnvIterationsDir, DefaultIterationsDirName)
}

func resolve(flag, configYAMLValue, env, defaultName string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configYAMLValue != "" {
		return filepath.Abs(configYAMLValue)
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Abs(v)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, defaultName), nil
}
