package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"labrunner/internal/pool"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"LABRUNNER_FORMAT", "LABRUNNER_ENGINE", "LABRUNNER_TIMEOUT", "LABRUNNER_MAX_WORKERS", "LABRUNNER_POLL_INTERVAL", "LABRUNNER_PROGRESS"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	v, err := NewViper("")
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timeout != defaultTimeout || cfg.PollInterval != defaultPollInterval || cfg.Format != FormatText {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if want, _ := ResolveMaxWorkers(0); cfg.MaxWorkers != want {
		t.Fatalf("MaxWorkers = %d, want %d", cfg.MaxWorkers, want)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "labrunner.toml")
	content := "max-workers = 3\ntimeout = \"90s\"\nformat = \"markdown\"\nengine = \"pytest\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LABRUNNER_TIMEOUT", "2m")
	t.Setenv("LABRUNNER_PROGRESS", "true")

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxWorkers != 3 || cfg.Timeout != 2*time.Minute || cfg.Format != FormatMarkdown || cfg.Engine != "pytest" || !cfg.ShowProgress {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative workers", "LABRUNNER_MAX_WORKERS", "-2"},
		{"zero timeout", "LABRUNNER_TIMEOUT", "0s"},
		{"unknown format", "LABRUNNER_FORMAT", "html"},
		{"bad engine name", "LABRUNNER_ENGINE", "py test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			v, err := NewViper("")
			if err != nil {
				t.Fatalf("NewViper() error = %v", err)
			}
			if _, err := Load(v); err == nil {
				t.Fatalf("Load() with %s=%s succeeded", tt.key, tt.value)
			}
		})
	}
}

func TestNewViperMissingExplicitFile(t *testing.T) {
	if _, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestResolveMaxWorkers(t *testing.T) {
	if _, err := ResolveMaxWorkers(-1); !errors.Is(err, pool.ErrInvalidConcurrency) {
		t.Fatalf("ResolveMaxWorkers(-1) err = %v", err)
	}
	if got, _ := ResolveMaxWorkers(0); got < 1 || got > maxWorkersLimit {
		t.Fatalf("ResolveMaxWorkers(0) = %d", got)
	}
	if got, _ := ResolveMaxWorkers(7); got != 7 {
		t.Fatalf("ResolveMaxWorkers(7) = %d", got)
	}
	if got, _ := ResolveMaxWorkers(500); got != maxWorkersLimit {
		t.Fatalf("ResolveMaxWorkers(500) = %d, want %d", got, maxWorkersLimit)
	}
}

func TestParseBoolFlag(t *testing.T) {
	tests := []struct {
		in   string
		def  bool
		want bool
	}{
		{"1", false, true},
		{" YES ", false, true},
		{"on", false, true},
		{"off", true, false},
		{"False", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		if got := ParseBoolFlag(tt.in, tt.def); got != tt.want {
			t.Fatalf("ParseBoolFlag(%q, %v) = %v, want %v", tt.in, tt.def, got, tt.want)
		}
	}
}

func TestEnvFlagEnabled(t *testing.T) {
	const key = "LABRUNNER_TEST_FLAG"
	t.Setenv(key, "")
	os.Unsetenv(key)
	if EnvFlagEnabled(key) {
		t.Fatalf("unset flag reported enabled")
	}
	for val, want := range map[string]bool{"1": true, "anything": true, "0": false, "off": false, "": false} {
		t.Setenv(key, val)
		if got := EnvFlagEnabled(key); got != want {
			t.Fatalf("EnvFlagEnabled(%q) = %v, want %v", val, got, want)
		}
	}
}

func TestValidateEngineName(t *testing.T) {
	for _, ok := range []string{"go", "py_test", "pester-5", "X1"} {
		if err := ValidateEngineName(ok); err != nil {
			t.Fatalf("ValidateEngineName(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "  ", "py test", "../x", "é"} {
		if err := ValidateEngineName(bad); err == nil {
			t.Fatalf("ValidateEngineName(%q) succeeded", bad)
		}
	}
}

func TestResolveEngineDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ResetEnginesCacheForTest()
	t.Cleanup(ResetEnginesCacheForTest)

	name, engine, err := ResolveEngine("", nil)
	if err != nil || name != "go" || engine.Output != OutputGoTestJSON || !engine.InFileDir {
		t.Fatalf("ResolveEngine(\"\") = %q, %+v, %v", name, engine, err)
	}
	if name, _, err := ResolveEngine(" PyTest ", nil); err != nil || name != "pytest" {
		t.Fatalf("ResolveEngine(pytest) = %q, %v", name, err)
	}
	if _, _, err := ResolveEngine("mocha", nil); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
}

func TestResolveEngineFromHomeConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	ResetEnginesCacheForTest()
	t.Cleanup(ResetEnginesCacheForTest)

	dir := filepath.Join(home, ".labrunner")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := `{
  "default": "bats",
  "engines": {
    "bats": {"command": "bats", "args": ["--tap", "{target}"]},
    "bad name": {"command": "x"},
    "empty": {"command": "  "}
  }
}`
	if err := os.WriteFile(filepath.Join(dir, "engines.json"), []byte(content), 0o600); err != nil {
		t.Fatalf("write engines: %v", err)
	}

	name, engine, err := ResolveEngine("", nil)
	if err != nil || name != "bats" || engine.Output != OutputSummary {
		t.Fatalf("ResolveEngine(\"\") = %q, %+v, %v", name, engine, err)
	}
	if _, _, err := ResolveEngine("pytest", nil); err != nil {
		t.Fatalf("built-in engines should stay available: %v", err)
	}
	if _, _, err := ResolveEngine("empty", nil); err == nil {
		t.Fatalf("engine with empty command should be ignored")
	}
	names := strings.Join(EngineNames(nil), ",")
	if strings.Contains(names, "bad name") {
		t.Fatalf("invalid engine name kept: %s", names)
	}
}

func TestExpandArgs(t *testing.T) {
	e := EngineConfig{Args: []string{"-v={verbosity}", "--rootdir", PlaceholderDir, PlaceholderTarget}}
	got := e.ExpandArgs("tests/unit/test_a.py", VerbosityDetailed)
	want := []string{"-v=detailed", "--rootdir", "tests/unit", "tests/unit/test_a.py"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExpandArgs() = %v, want %v", got, want)
	}
	if len(e.Args) != 4 || e.Args[3] != PlaceholderTarget {
		t.Fatalf("ExpandArgs mutated the template: %v", e.Args)
	}
}
