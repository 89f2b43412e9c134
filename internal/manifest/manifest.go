// Package manifest reads the list of shell jobs run by `labrunner run`,
// either as ---JOB--- blocks on stdin or as a JSON, YAML or TOML file.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"labrunner/internal/codec"
	"labrunner/internal/config"
)

const (
	jobSeparator     = "---JOB---"
	commandSeparator = "---COMMAND---"
)

// JobSpec is one shell job.
type JobSpec struct {
	Name    string            `json:"name" yaml:"name" toml:"name"`
	Command string            `json:"command" yaml:"command" toml:"command"`
	WorkDir string            `json:"workdir,omitempty" yaml:"workdir,omitempty" toml:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Enabled *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled,omitempty"`
}

// Disabled reports whether the job was switched off with enabled: false.
func (j JobSpec) Disabled() bool { return j.Enabled != nil && !*j.Enabled }

// Manifest is the set of jobs for one run.
type Manifest struct {
	Jobs []JobSpec `json:"jobs" yaml:"jobs" toml:"jobs"`
}

// Active returns the jobs that are not disabled.
func (m *Manifest) Active() []JobSpec {
	out := make([]JobSpec, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		if !j.Disabled() {
			out = append(out, j)
		}
	}
	return out
}

// Validate checks that every job has a unique name and a command.
func (m *Manifest) Validate() error {
	if len(m.Jobs) == 0 {
		return fmt.Errorf("no jobs found")
	}
	seen := make(map[string]struct{}, len(m.Jobs))
	for i, j := range m.Jobs {
		if strings.TrimSpace(j.Name) == "" {
			return fmt.Errorf("job #%d missing name", i+1)
		}
		if strings.TrimSpace(j.Command) == "" {
			return fmt.Errorf("job #%d (%q) missing command", i+1, j.Name)
		}
		if j.WorkDir == "-" {
			return fmt.Errorf("job #%d (%q) has invalid workdir: '-' is not a valid directory path", i+1, j.Name)
		}
		if _, dup := seen[j.Name]; dup {
			return fmt.Errorf("job #%d has duplicate name: %s", i+1, j.Name)
		}
		seen[j.Name] = struct{}{}
	}
	return nil
}

// ParseBlocks parses jobs written as
//
//	---JOB---
//	name: build
//	workdir: ./src
//	env: GOFLAGS=-mod=mod
//	---COMMAND---
//	make all
//
// Unknown metadata keys are ignored. env may repeat.
func ParseBlocks(data []byte) (*Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("job manifest is empty")
	}

	var m Manifest
	index := 0
	for _, block := range strings.Split(string(trimmed), jobSeparator) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		index++

		parts := strings.SplitN(block, commandSeparator, 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("job block #%d missing %s separator", index, commandSeparator)
		}

		job := JobSpec{Command: strings.TrimSpace(parts[1])}
		for _, line := range strings.Split(parts[0], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			kv := strings.SplitN(line, ":", 2)
			if len(kv) != 2 {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(kv[0]))
			value := strings.TrimSpace(kv[1])

			switch key {
			case "name", "id":
				job.Name = value
			case "workdir":
				job.WorkDir = value
			case "env":
				name, val, ok := strings.Cut(value, "=")
				if !ok || strings.TrimSpace(name) == "" {
					return nil, fmt.Errorf("job block #%d has invalid env entry %q, want KEY=VALUE", index, value)
				}
				if job.Env == nil {
					job.Env = make(map[string]string)
				}
				job.Env[strings.TrimSpace(name)] = val
			case "enabled":
				enabled := config.ParseBoolFlag(value, true)
				job.Enabled = &enabled
			}
		}
		m.Jobs = append(m.Jobs, job)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads a manifest file. JSON manifests are checked against the
// embedded schema before decoding.
func Load(path string) (*Manifest, error) {
	format, err := codec.FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format == codec.FormatJSON {
		if err := ValidateJSON(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	var m Manifest
	if err := codec.Decode(format, data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}
