// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dutbench/internal/traffic"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// RemoteConfig selects the DUT and the stats command run on it.
type RemoteConfig struct {
	Host        string   `yaml:"host"`
	SSHConfig   string   `yaml:"ssh_config"`
	KnownHosts  string   `yaml:"known_hosts"`
	DialTimeout Duration `yaml:"dial_timeout"`
	// Command is a text/template with Respond, TargetID, Rate and Size.
	Command string `yaml:"command"`
}

// GeneratorConfig describes the local traffic generator.
type GeneratorConfig struct {
	Command     string `yaml:"command"`
	LogPath     string `yaml:"log_path"`
	RandomArg   string `yaml:"random_arg"`
	PTY         bool   `yaml:"pty"`
	ProcessName string `yaml:"process_name"`
}

// RatesConfig holds the congested and uncongested transmit rates.
type RatesConfig struct {
	High int `yaml:"high"`
	Low  int `yaml:"low"`
}

// TimingConfig holds every wait in a run.
type TimingConfig struct {
	StartGrace     Duration `yaml:"start_grace"`
	PollInterval   Duration `yaml:"poll_interval"`
	StartupTimeout Duration `yaml:"startup_timeout"`
	InterruptGrace Duration `yaml:"interrupt_grace"`
	SettleDelay    Duration `yaml:"settle_delay"`
}

// PreflightConfig controls the checks run before the sweep.
type PreflightConfig struct {
	Ping        bool     `yaml:"ping"`
	PingCount   int      `yaml:"ping_count"`
	PingTimeout Duration `yaml:"ping_timeout"`
	Privileged  bool     `yaml:"privileged"`
}

// BenchConfig is the root configuration.
type BenchConfig struct {
	Remote      RemoteConfig    `yaml:"remote"`
	Generator   GeneratorConfig `yaml:"generator"`
	Rates       RatesConfig     `yaml:"rates"`
	Timing      TimingConfig    `yaml:"timing"`
	Sizes       []string        `yaml:"sizes"`
	ArchiveLogs bool            `yaml:"archive_logs"`
	Preflight   PreflightConfig `yaml:"preflight"`
}

// Default returns the configuration used when no file is given.
func Default() *BenchConfig {
	return &BenchConfig{
		Remote: RemoteConfig{
			Host:        "cab1",
			DialTimeout: Duration(10 * time.Second),
			Command:     "python scripts/stats.py {{.Respond}} {{.TargetID}}",
		},
		Generator: GeneratorConfig{
			Command:     "~/MoonGen/build/MoonGen ~/MoonGen/examples/cocoa_generator.lua",
			LogPath:     "./outputs/tg_out.txt",
			RandomArg:   "r",
			ProcessName: "MoonGen",
		},
		Rates: RatesConfig{High: 10000, Low: 250},
		Timing: TimingConfig{
			StartGrace:     Duration(5 * time.Second),
			PollInterval:   Duration(time.Second),
			StartupTimeout: Duration(2 * time.Minute),
			InterruptGrace: Duration(5 * time.Second),
			SettleDelay:    Duration(2 * time.Second),
		},
		Preflight: PreflightConfig{PingCount: 3, PingTimeout: Duration(5 * time.Second)},
	}
}

// Load reads configPath on top of Default, validating it against the CUE
// schema first. An empty schemaPath uses the built-in schema and an empty
// configPath skips the file. Environment overrides are applied last.
func Load(configPath, cueSchemaPath string) (*BenchConfig, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
		schema := builtinSchema
		if cueSchemaPath != "" {
			if schema, err = os.ReadFile(cueSchemaPath); err != nil {
				return nil, fmt.Errorf("cannot read CUE schema: %w", err)
			}
		}
		if err := ValidateWithCue(configPath, data, schema); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Generator.LogPath = ExpandHome(cfg.Generator.LogPath)
	cfg.Remote.SSHConfig = ExpandHome(cfg.Remote.SSHConfig)
	cfg.Remote.KnownHosts = ExpandHome(cfg.Remote.KnownHosts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("loaded configuration", "host", cfg.Remote.Host, "log", cfg.Generator.LogPath, "high", cfg.Rates.High, "low", cfg.Rates.Low)
	return cfg, nil
}

func (c *BenchConfig) applyEnv() error {
	if v := os.Getenv("DUTBENCH_HOST"); v != "" {
		c.Remote.Host = v
	}
	if v := os.Getenv("DUTBENCH_LOG_PATH"); v != "" {
		c.Generator.LogPath = v
	}
	if v := os.Getenv("DUTBENCH_STARTUP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DUTBENCH_STARTUP_TIMEOUT: %w", err)
		}
		c.Timing.StartupTimeout = Duration(d)
	}
	return nil
}

// Validate checks the constraints the schema cannot express.
func (c *BenchConfig) Validate() error {
	if c.Remote.Host == "" {
		return fmt.Errorf("remote.host must be set")
	}
	if strings.TrimSpace(c.Generator.Command) == "" {
		return fmt.Errorf("generator.command must be set")
	}
	if c.Rates.High <= 0 || c.Rates.Low <= 0 {
		return fmt.Errorf("rates must be positive, got high=%d low=%d", c.Rates.High, c.Rates.Low)
	}
	if c.Timing.PollInterval <= 0 {
		return fmt.Errorf("timing.poll_interval must be positive")
	}
	if c.Timing.StartupTimeout < 0 {
		return fmt.Errorf("timing.startup_timeout must not be negative")
	}
	if _, err := c.PacketSizes(); err != nil {
		return err
	}
	return nil
}

// PacketSizes returns the configured sweep, or the default set.
func (c *BenchConfig) PacketSizes() ([]traffic.PacketSize, error) {
	if len(c.Sizes) == 0 {
		return traffic.DefaultSizes(), nil
	}
	return traffic.ParseSizes(c.Sizes)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
