package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"labrunner/internal/pool"

	"github.com/spf13/viper"
)

const (
	maxWorkersLimit     = 100
	defaultTimeout      = 30 * time.Minute
	defaultPollInterval = time.Second
)

// Output formats understood by the CLI.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Config holds the resolved run settings shared by the test and run commands.
type Config struct {
	MaxWorkers      int
	Timeout         time.Duration
	PollInterval    time.Duration
	ShowProgress    bool
	Engine          string
	Format          string
	MetricsTextfile string
	Verbose         bool
	LogLevel        string
}

// Load resolves Config from v, which already merges flags, env and file.
func Load(v *viper.Viper) (Config, error) {
	workers, err := ResolveMaxWorkers(v.GetInt("max-workers"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		MaxWorkers:      workers,
		Timeout:         v.GetDuration("timeout"),
		PollInterval:    v.GetDuration("poll-interval"),
		ShowProgress:    v.GetBool("progress"),
		Engine:          strings.TrimSpace(v.GetString("engine")),
		Format:          strings.ToLower(strings.TrimSpace(v.GetString("format"))),
		MetricsTextfile: strings.TrimSpace(v.GetString("metrics-textfile")),
		Verbose:         v.GetBool("verbose"),
		LogLevel:        strings.TrimSpace(v.GetString("log-level")),
	}
	if cfg.Timeout <= 0 {
		return Config{}, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	switch cfg.Format {
	case "":
		cfg.Format = FormatText
	case FormatText, FormatJSON, FormatMarkdown:
	default:
		return Config{}, fmt.Errorf("unsupported format %q (want text, json or markdown)", cfg.Format)
	}
	if cfg.Engine != "" {
		if err := ValidateEngineName(cfg.Engine); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// ResolveMaxWorkers returns the processing-unit count for 0, rejects
// negative values and caps at 100.
func ResolveMaxWorkers(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, fmt.Errorf("%w: max-workers %d", pool.ErrInvalidConcurrency, requested)
	case requested == 0:
		requested = pool.DefaultConcurrency()
	}
	if requested > maxWorkersLimit {
		return maxWorkersLimit, nil
	}
	return requested, nil
}

// EnvFlagEnabled returns true when the environment variable exists and is not
// explicitly set to a falsey value ("0/false/no/off").
func EnvFlagEnabled(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return ParseBoolFlag(val, true) && strings.TrimSpace(val) != ""
}

func ParseBoolFlag(val string, defaultValue bool) bool {
	switch strings.TrimSpace(strings.ToLower(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ValidateEngineName accepts [A-Za-z0-9_-]+.
func ValidateEngineName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("engine name is empty")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-', r == '_':
		default:
			return fmt.Errorf("engine name %q contains invalid character %q", name, r)
		}
	}
	return nil
}
