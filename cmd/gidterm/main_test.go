package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestBuildGraphSingleProject(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "tasks.yml", `project: app
tasks:
  - name: install
    command: npm install
  - name: build
    command: npm run build
    depends_on: [install]
`)

	g, err := buildGraph([]string{path})
	if err != nil {
		t.Fatalf("buildGraph failed: %v", err)
	}

	// A single project keeps bare task IDs.
	if _, ok := g.Get("build"); !ok {
		t.Error("Expected task build in single-project graph")
	}
	ready := g.Ready()
	if len(ready) != 1 || ready[0] != "install" {
		t.Errorf("Expected install ready, got %v", ready)
	}
}

func TestBuildGraphWorkspace(t *testing.T) {
	dir := t.TempDir()
	backend := writeYAML(t, dir, "backend.yml", `project: backend
tasks:
  - name: build
    command: go build ./...
`)
	frontend := writeYAML(t, dir, "frontend.yml", `project: frontend
tasks:
  - name: build
    command: vite build
    depends_on: [backend:build]
`)

	g, err := buildGraph([]string{backend, frontend})
	if err != nil {
		t.Fatalf("buildGraph failed: %v", err)
	}

	// Workspaces get namespaced IDs and explicit cross-project edges.
	task, ok := g.Get("frontend:build")
	if !ok {
		t.Fatal("Expected frontend:build in workspace graph")
	}
	if len(task.DependsOn) != 1 || task.DependsOn[0] != "backend:build" {
		t.Errorf("Unexpected dependencies %v", task.DependsOn)
	}
}

func TestBuildGraphErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := buildGraph([]string{filepath.Join(dir, "missing.yml")}); err == nil {
		t.Error("Expected error for missing file")
	}

	cyclic := writeYAML(t, dir, "cyclic.yml", `project: loop
tasks:
  - name: a
    command: echo a
    depends_on: [b]
  - name: b
    command: echo b
    depends_on: [a]
`)
	if _, err := buildGraph([]string{cyclic}); err == nil {
		t.Error("Expected error for cyclic definitions")
	}
}
