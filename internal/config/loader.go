package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aristath/gidterm/internal/graph"
)

// LoadProject reads and validates one project task-definition document.
func LoadProject(path string) (*ProjectFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var pf ProjectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if pf.Project == "" {
		// Fall back to the enclosing directory name.
		pf.Project = filepath.Base(filepath.Dir(path))
	}
	if err := pf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &pf, nil
}

// LoadWorkspace reads multiple project documents into the (project name,
// task descriptor list) pairs the graph merger consumes.
func LoadWorkspace(paths []string) ([]graph.Project, error) {
	projects := make([]graph.Project, 0, len(paths))
	seen := make(map[string]string)

	for _, path := range paths {
		pf, err := LoadProject(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[pf.Project]; dup {
			return nil, fmt.Errorf("project %q defined by both %s and %s", pf.Project, prev, path)
		}
		seen[pf.Project] = path
		projects = append(projects, graph.Project{Name: pf.Project, Tasks: pf.Definitions()})
	}
	return projects, nil
}

// LoadSettings reads and merges runtime settings from global and project
// paths. Order of precedence (highest to lowest): project file, global
// file, defaults. Missing files are not errors; malformed YAML is.
func LoadSettings(globalPath, projectPath string) (*Settings, error) {
	s := DefaultSettings()

	if globalPath != "" {
		if err := mergeSettingsFile(s, globalPath); err != nil {
			return nil, fmt.Errorf("loading global settings: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeSettingsFile(s, projectPath); err != nil {
			return nil, fmt.Errorf("loading project settings: %w", err)
		}
	}
	return s, nil
}

// LoadDefaultSettings loads settings from conventional paths.
// Global: ~/.gidterm/config.yml
// Project: .gidterm/config.yml (relative to cwd)
func LoadDefaultSettings() (*Settings, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	return LoadSettings(
		filepath.Join(homeDir, ".gidterm", "config.yml"),
		filepath.Join(".gidterm", "config.yml"),
	)
}

// mergeSettingsFile overlays non-zero values from a YAML file onto base.
// Missing files are silently skipped.
func mergeSettingsFile(base *Settings, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.ConcurrencyLimit > 0 {
		base.ConcurrencyLimit = loaded.ConcurrencyLimit
	}
	if loaded.OutputBufferCap > 0 {
		base.OutputBufferCap = loaded.OutputBufferCap
	}
	if loaded.OutputTailLines > 0 {
		base.OutputTailLines = loaded.OutputTailLines
	}
	if loaded.TerminateGraceSeconds > 0 {
		base.TerminateGraceSeconds = loaded.TerminateGraceSeconds
	}
	if loaded.HistoryPath != "" {
		base.HistoryPath = loaded.HistoryPath
	}
	return nil
}

// SaveSettings persists settings to a YAML file, creating parent
// directories if they don't exist.
func SaveSettings(s *Settings, path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing settings to %s: %w", path, err)
	}
	return nil
}
