package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"labrunner/internal/logger"

	"github.com/goccy/go-json"
)

// Output formats a test engine may emit.
const (
	OutputGoTestJSON = "gotest-json"
	OutputSummary    = "summary"
)

// Placeholders expanded in EngineConfig.Args.
const (
	PlaceholderTarget    = "{target}"
	PlaceholderDir       = "{dir}"
	PlaceholderVerbosity = "{verbosity}"
)

// EngineConfig describes how to invoke one test-execution engine.
type EngineConfig struct {
	Command     string   `json:"command"`
	Args        []string `json:"args,omitempty"`
	Output      string   `json:"output"`
	InFileDir   bool     `json:"in_file_dir,omitempty"`
	Description string   `json:"description,omitempty"`
}

// EnginesConfig is the shape of ~/.labrunner/engines.json.
type EnginesConfig struct {
	Default string                  `json:"default"`
	Engines map[string]EngineConfig `json:"engines"`
}

var defaultEnginesConfig = EnginesConfig{
	Default: "go",
	Engines: map[string]EngineConfig{
		"go": {
			Command:     "go",
			Args:        []string{"test", "-json", "."},
			Output:      OutputGoTestJSON,
			InFileDir:   true,
			Description: "go test, package of the given file",
		},
		"pytest": {
			Command:     "python3",
			Args:        []string{"-m", "pytest", "-q", "-rN", PlaceholderTarget},
			Output:      OutputSummary,
			Description: "pytest on a single file",
		},
		"pester": {
			Command:     "pwsh",
			Args:        []string{"-NoProfile", "-NonInteractive", "-Command", "Invoke-Pester -Path '" + PlaceholderTarget + "' -Output Normal"},
			Output:      OutputSummary,
			Description: "Pester on a single script",
		},
	},
}

var (
	enginesOnce   sync.Once
	enginesCached *EnginesConfig
)

func enginesConfig(log logger.Sink) *EnginesConfig {
	enginesOnce.Do(func() {
		enginesCached = loadEnginesConfig(logger.OrNop(log))
	})
	if enginesCached == nil {
		return &defaultEnginesConfig
	}
	return enginesCached
}

func loadEnginesConfig(log logger.Sink) *EnginesConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Log(logger.LevelWarn, fmt.Sprintf("Failed to resolve home directory for engines config: %v; using defaults", err))
		return &defaultEnginesConfig
	}

	configPath := filepath.Clean(filepath.Join(home, ".labrunner", "engines.json"))
	data, err := os.ReadFile(configPath) // #nosec G304 -- fixed path under user home
	if err != nil {
		if !os.IsNotExist(err) {
			log.Log(logger.LevelWarn, fmt.Sprintf("Failed to read engines config %s: %v; using defaults", configPath, err))
		}
		return &defaultEnginesConfig
	}

	var cfg EnginesConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Log(logger.LevelWarn, fmt.Sprintf("Failed to parse engines config %s: %v; using defaults", configPath, err))
		return &defaultEnginesConfig
	}

	cfg.Default = strings.TrimSpace(cfg.Default)
	if cfg.Default == "" {
		cfg.Default = defaultEnginesConfig.Default
	}

	merged := make(map[string]EngineConfig, len(defaultEnginesConfig.Engines)+len(cfg.Engines))
	for name, engine := range defaultEnginesConfig.Engines {
		merged[name] = engine
	}
	for name, engine := range cfg.Engines {
		key := strings.ToLower(strings.TrimSpace(name))
		if err := ValidateEngineName(key); err != nil {
			log.Log(logger.LevelWarn, fmt.Sprintf("Ignoring engine %q in %s: %v", name, configPath, err))
			continue
		}
		if strings.TrimSpace(engine.Command) == "" {
			log.Log(logger.LevelWarn, fmt.Sprintf("Ignoring engine %q in %s: command is empty", name, configPath))
			continue
		}
		if engine.Output == "" {
			engine.Output = OutputSummary
		}
		merged[key] = engine
	}
	cfg.Engines = merged
	return &cfg
}

// ResolveEngine returns the named engine, or the configured default for "".
func ResolveEngine(name string, log logger.Sink) (string, EngineConfig, error) {
	cfg := enginesConfig(log)
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = cfg.Default
	}
	engine, ok := cfg.Engines[key]
	if !ok {
		return "", EngineConfig{}, fmt.Errorf("unsupported engine %q", name)
	}
	switch engine.Output {
	case OutputGoTestJSON, OutputSummary:
	default:
		return "", EngineConfig{}, fmt.Errorf("engine %q has unsupported output %q", key, engine.Output)
	}
	return key, engine, nil
}

// EngineNames lists the known engines.
func EngineNames(log logger.Sink) []string {
	cfg := enginesConfig(log)
	names := make([]string, 0, len(cfg.Engines))
	for name := range cfg.Engines {
		names = append(names, name)
	}
	return names
}

// ExpandArgs substitutes placeholders in e.Args for one target.
func (e EngineConfig) ExpandArgs(target, verbosity string) []string {
	r := strings.NewReplacer(
		PlaceholderTarget, target,
		PlaceholderDir, filepath.Dir(target),
		PlaceholderVerbosity, verbosity,
	)
	out := make([]string, len(e.Args))
	for i, a := range e.Args {
		out[i] = r.Replace(a)
	}
	return out
}

func ResetEnginesCacheForTest() {
	enginesCached = nil
	enginesOnce = sync.Once{}
}
