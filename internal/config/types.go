package config

import (
	"fmt"

	"github.com/aristath/gidterm/internal/graph"
)

// TaskSpec describes one task in a project document. Declaration order in
// the document is preserved and used for scheduling tie-breaks.
type TaskSpec struct {
	Name        string   `yaml:"name"`
	Command     string   `yaml:"command"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
	Priority    int      `yaml:"priority,omitempty"`
	Type        string   `yaml:"type,omitempty"` // Parser selection annotation
	Description string   `yaml:"description,omitempty"`
}

// ProjectFile is the parsed form of one project's task-definition document.
type ProjectFile struct {
	Project     string     `yaml:"project"`
	Description string     `yaml:"description,omitempty"`
	Tasks       []TaskSpec `yaml:"tasks"`
}

// Validate checks the document for structural problems the graph builder
// cannot diagnose as precisely: empty names, missing commands.
func (p *ProjectFile) Validate() error {
	if p.Project == "" {
		return fmt.Errorf("project name is required")
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("project %q defines no tasks", p.Project)
	}
	for i, task := range p.Tasks {
		if task.Name == "" {
			return fmt.Errorf("project %q: task %d has no name", p.Project, i)
		}
		if task.Command == "" {
			return fmt.Errorf("project %q: task %q has no command", p.Project, task.Name)
		}
	}
	return nil
}

// Definitions converts the document's tasks to graph definitions.
func (p *ProjectFile) Definitions() []graph.Definition {
	defs := make([]graph.Definition, 0, len(p.Tasks))
	for _, task := range p.Tasks {
		defs = append(defs, graph.Definition{
			Name:      task.Name,
			Command:   task.Command,
			DependsOn: append([]string(nil), task.DependsOn...),
			Priority:  task.Priority,
			Type:      task.Type,
		})
	}
	return defs
}

// Settings is the runtime configuration for the orchestrator itself,
// separate from task-definition documents.
type Settings struct {
	ConcurrencyLimit      int    `yaml:"concurrency_limit"`
	OutputBufferCap       int    `yaml:"output_buffer_cap"`
	OutputTailLines       int    `yaml:"output_tail_lines"`
	TerminateGraceSeconds int    `yaml:"terminate_grace_seconds"`
	HistoryPath           string `yaml:"history_path,omitempty"` // Empty = default location
}
