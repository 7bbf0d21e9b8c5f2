package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/playground/internal/paths"
	"github.com/mesh-intelligence/playground/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configFile holds the structure written to config.yaml by init.
type configFile struct {
	Backend       string `yaml:"backend"`
	DataDir       string `yaml:"data_dir,omitempty"`
	IterationsDir string `yaml:"iterations_dir,omitempty"`
	Listen        string `yaml:"listen,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize playground storage",
		Long:  "Create the data and iterations directories, record them in config.yaml,\nthen initialize the storage backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInit(cmd)
		},
	}
}

func (a *app) runInit(cmd *cobra.Command) error {
	s := a.settings
	if err := os.MkdirAll(s.Store.IterationsDir, 0o755); err != nil {
		return sysError(fmt.Errorf("create iterations directory: %w", err))
	}

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(err)
	}
	path := filepath.Join(configDir, configFileExt)
	if err := writeConfig(path, configFile{
		Backend:       s.Store.Backend,
		DataDir:       s.Store.DataDir,
		IterationsDir: s.Store.IterationsDir,
		Listen:        s.Listen,
		LogLevel:      a.config.GetString(cfgKeyLogLevel),
	}); err != nil {
		return sysError(fmt.Errorf("write config: %w", err))
	}

	backend, err := store.Open(s.Store)
	if err != nil {
		return sysError(fmt.Errorf("initialize storage: %w", err))
	}
	if err := backend.Detach(); err != nil {
		return sysError(fmt.Errorf("finalize storage: %w", err))
	}

	a.logger.Debug("storage initialized", "backend", s.Store.Backend, "data_dir", s.Store.DataDir)
	fmt.Fprintf(cmd.OutOrStdout(), "Playground initialized (%s backend in %s)\n", s.Store.Backend, s.Store.DataDir)
	return nil
}

// writeConfig replaces the commented default config.yaml with the resolved
// values. A config.yaml already carrying a data_dir is left alone.
func writeConfig(path string, cfg configFile) error {
	if data, err := os.ReadFile(path); err == nil {
		var existing configFile
		if yaml.Unmarshal(data, &existing) == nil && existing.DataDir != "" {
			return nil
		}
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
