package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBlocks(t *testing.T) {
	input := `---JOB---
name: unit
workdir: ./pkg
env: GOFLAGS=-count=1
env: CGO_ENABLED=0
---COMMAND---
go test ./...
---JOB---
id: lint
enabled: no
---COMMAND---
golangci-lint run
`
	m, err := ParseBlocks([]byte(input))
	if err != nil {
		t.Fatalf("ParseBlocks() error = %v", err)
	}
	if len(m.Jobs) != 2 {
		t.Fatalf("len(Jobs) = %d, want 2", len(m.Jobs))
	}
	unit := m.Jobs[0]
	if unit.Name != "unit" || unit.WorkDir != "./pkg" || unit.Command != "go test ./..." {
		t.Fatalf("unexpected job %+v", unit)
	}
	if unit.Env["GOFLAGS"] != "-count=1" || unit.Env["CGO_ENABLED"] != "0" {
		t.Fatalf("unexpected env %v", unit.Env)
	}
	if !m.Jobs[1].Disabled() || m.Jobs[1].Name != "lint" {
		t.Fatalf("lint job should be disabled: %+v", m.Jobs[1])
	}
	if active := m.Active(); len(active) != 1 || active[0].Name != "unit" {
		t.Fatalf("Active() = %+v", active)
	}
}

func TestParseBlocksErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "   \n", "empty"},
		{"missing separator", "---JOB---\nname: a\n", "missing ---COMMAND---"},
		{"missing name", "---JOB---\n---COMMAND---\nls", "missing name"},
		{"missing command", "---JOB---\nname: a\n---COMMAND---\n", "missing command"},
		{"bad workdir", "---JOB---\nname: a\nworkdir: -\n---COMMAND---\nls", "invalid workdir"},
		{"duplicate", "---JOB---\nname: a\n---COMMAND---\nls\n---JOB---\nname: a\n---COMMAND---\npwd", "duplicate name"},
		{"bad env", "---JOB---\nname: a\nenv: NOVALUE\n---COMMAND---\nls", "invalid env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlocks([]byte(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("ParseBlocks() err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"jobs.json": `{"jobs":[{"name":"unit","command":"go test ./...","env":{"A":"1"}},{"name":"vet","command":"go vet ./..."}]}`,
		"jobs.yaml": "jobs:\n  - name: unit\n    command: go test ./...\n    env:\n      A: \"1\"\n  - name: vet\n    command: go vet ./...\n",
		"jobs.toml": "[[jobs]]\nname = \"unit\"\ncommand = \"go test ./...\"\n[jobs.env]\nA = \"1\"\n\n[[jobs]]\nname = \"vet\"\ncommand = \"go vet ./...\"\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			m, err := Load(writeFile(t, name, content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(m.Jobs) != 2 || m.Jobs[0].Name != "unit" || m.Jobs[0].Env["A"] != "1" || m.Jobs[1].Command != "go vet ./..." {
				t.Fatalf("unexpected manifest %+v", m)
			}
		})
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	tests := map[string]string{
		"no jobs":       `{"jobs":[]}`,
		"unknown field": `{"jobs":[{"name":"a","command":"ls","retries":3}]}`,
		"wrong type":    `{"jobs":[{"name":"a","command":["ls"]}]}`,
		"dash workdir":  `{"jobs":[{"name":"a","command":"ls","workdir":"-"}]}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "jobs.json", content)); err == nil || !strings.Contains(err.Error(), "validation failed") {
				t.Fatalf("Load() err = %v, want schema validation failure", err)
			}
		})
	}
}

func TestLoadRejectsUnknownExtensionAndYAMLFields(t *testing.T) {
	if _, err := Load(writeFile(t, "jobs.txt", "x")); err == nil {
		t.Fatalf("expected error for .txt manifest")
	}
	if _, err := Load(writeFile(t, "jobs.yml", "jobs:\n  - name: a\n    command: ls\n    retries: 3\n")); err == nil {
		t.Fatalf("expected error for unknown YAML field")
	}
}
