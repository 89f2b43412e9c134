package config

import (
	"fmt"
	"strings"

	"labrunner/internal/codec"
)

// Verbosity levels passed to engines through {verbosity}.
const (
	VerbosityNone     = "none"
	VerbosityMinimal  = "minimal"
	VerbosityNormal   = "normal"
	VerbosityDetailed = "detailed"
)

// TestConfig is the configuration object handed to a test-execution engine
// for one target.
type TestConfig struct {
	Target         string            `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
	Verbosity      string            `json:"verbosity,omitempty" yaml:"verbosity,omitempty" toml:"verbosity,omitempty"`
	CollectResults bool              `json:"collect_results" yaml:"collect_results" toml:"collect_results"`
	Engine         string            `json:"engine,omitempty" yaml:"engine,omitempty" toml:"engine,omitempty"`
	Args           []string          `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	WorkDir        string            `json:"workdir,omitempty" yaml:"workdir,omitempty" toml:"workdir,omitempty"`
}

// DefaultTestConfig is the minimal configuration used when the caller
// supplies none: the file itself, minimal output, results collected.
func DefaultTestConfig(target string) TestConfig {
	return TestConfig{
		Target:         target,
		Verbosity:      VerbosityMinimal,
		CollectResults: true,
	}
}

// ForTarget returns a copy of c aimed at target. An explicit Target in c is
// kept.
func (c TestConfig) ForTarget(target string) TestConfig {
	out := c
	if strings.TrimSpace(out.Target) == "" {
		out.Target = target
	}
	if out.Verbosity == "" {
		out.Verbosity = VerbosityMinimal
	}
	if len(c.Args) > 0 {
		out.Args = append([]string(nil), c.Args...)
	}
	if len(c.Env) > 0 {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	return out
}

// Validate checks enumerated fields.
func (c TestConfig) Validate() error {
	switch strings.ToLower(c.Verbosity) {
	case "", VerbosityNone, VerbosityMinimal, VerbosityNormal, VerbosityDetailed:
	default:
		return fmt.Errorf("unsupported verbosity %q", c.Verbosity)
	}
	if c.Engine != "" {
		if err := ValidateEngineName(c.Engine); err != nil {
			return err
		}
	}
	return nil
}

// LoadTestConfig reads a TestConfig from a .json, .yaml/.yml or .toml file.
func LoadTestConfig(path string) (*TestConfig, error) {
	cfg := TestConfig{CollectResults: true}
	if err := codec.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.Verbosity = strings.ToLower(strings.TrimSpace(cfg.Verbosity))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("test config %s: %w", path, err)
	}
	return &cfg, nil
}
