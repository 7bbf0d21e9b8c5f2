package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/playground/internal/agent"
	"github.com/mesh-intelligence/playground/internal/paths"
	"github.com/mesh-intelligence/playground/internal/server"
	"github.com/mesh-intelligence/playground/pkg/types"
	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend        = "backend"
	cfgKeyDataDir        = "data_dir"
	cfgKeyIterationsDir  = "iterations_dir"
	cfgKeyListen         = "listen"
	cfgKeyLogLevel       = "log_level"
	cfgKeyAgentCommand   = "agent_command"
	cfgKeyModelsCommand  = "models_command"
	cfgKeyAgentWorkDir   = "agent_workdir"
	cfgKeyTempDir        = "temp_dir"
	cfgKeyPollInterval   = "poll_interval"
	cfgKeyPollWindow     = "poll_window"
	cfgKeyScanGrace      = "scan_grace"
	cfgKeyKillGrace      = "kill_grace"
	defaultBackend       = types.BackendFile
	defaultLogLevel      = "info"
	defaultTempDirSuffix = ".playground-temp"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Playground configuration

# Storage backend: file or sqlite
backend: file

# Directories (optional; overridable by flags and PLAYGROUND_* variables)
# data_dir:
# iterations_dir:

# HTTP listen address for "playground serve"
listen: 127.0.0.1:4321

# debug, info, warn, or error
log_level: info

# Agent invocation
# agent_command: [cursor, agent, --print, --force]
# models_command: [cursor, agent, models]

# Timing
poll_interval: 10s
poll_window: 120s
scan_grace: 1s
kill_grace: 2s
`

// settings is the resolved configuration for one command.
type settings struct {
	Store         types.Config
	Listen        string
	LogLevel      string
	AgentCommand  []string
	ModelsCommand []string
	AgentWorkDir  string
	TempDir       string
	PollInterval  time.Duration
	PollWindow    time.Duration
	ScanGrace     time.Duration
	KillGrace     time.Duration
}

// loadConfig reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run. A missing config.yaml is
// not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetDefault(cfgKeyListen, server.DefaultAddr)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyAgentCommand, agent.DefaultCommand)
	v.SetDefault(cfgKeyModelsCommand, agent.DefaultModelsCommand)
	v.SetDefault(cfgKeyPollInterval, types.DefaultPollInterval)
	v.SetDefault(cfgKeyPollWindow, types.DefaultPollWindow)
	v.SetDefault(cfgKeyScanGrace, types.DefaultScanGrace)
	v.SetDefault(cfgKeyKillGrace, types.DefaultKillGrace)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if none exists.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// resolveSettings merges flags over v.
func resolveSettings(v *viper.Viper, f rootFlags) (settings, error) {
	dataDir, err := paths.ResolveDataDir(f.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return settings{}, fmt.Errorf("resolve data dir: %w", err)
	}
	itDir, err := paths.ResolveIterationsDir(f.iterationsDir, v.GetString(cfgKeyIterationsDir))
	if err != nil {
		return settings{}, fmt.Errorf("resolve iterations dir: %w", err)
	}

	s := settings{
		Store: types.Config{
			Backend:       v.GetString(cfgKeyBackend),
			DataDir:       dataDir,
			IterationsDir: itDir,
		},
		Listen:        v.GetString(cfgKeyListen),
		LogLevel:      v.GetString(cfgKeyLogLevel),
		AgentCommand:  v.GetStringSlice(cfgKeyAgentCommand),
		ModelsCommand: v.GetStringSlice(cfgKeyModelsCommand),
		AgentWorkDir:  v.GetString(cfgKeyAgentWorkDir),
		TempDir:       v.GetString(cfgKeyTempDir),
		PollInterval:  v.GetDuration(cfgKeyPollInterval),
		PollWindow:    v.GetDuration(cfgKeyPollWindow),
		ScanGrace:     v.GetDuration(cfgKeyScanGrace),
		KillGrace:     v.GetDuration(cfgKeyKillGrace),
	}
	if f.logLevel != "" {
		s.LogLevel = f.logLevel
	}
	if s.TempDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return settings{}, err
		}
		s.TempDir = filepath.Join(cwd, defaultTempDirSuffix)
	}
	if err := s.Store.Validate(); err != nil {
		return settings{}, fmt.Errorf("config %s %q: %w", cfgKeyBackend, s.Store.Backend, err)
	}
	return s, nil
}
