package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr     string            `yaml:"listen_addr"`
	DB             DBConfig          `yaml:"db"`
	FingerprintKey string            `yaml:"fingerprint_key"`
	Ledger         LedgerConfig      `yaml:"ledger"`
	Transparency   TransparencyConfig `yaml:"transparency"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LedgerConfig struct {
	AppendTimeout Duration `yaml:"append_timeout"`
}

type TransparencyConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
}

// Duration parses yaml values like "2s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.FingerprintKey == "" {
		return fmt.Errorf("fingerprint_key is required")
	}

	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is %s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unsupported db.driver: %s", c.DB.Driver)
	}

	if c.Ledger.AppendTimeout < 0 {
		return fmt.Errorf("ledger.append_timeout cannot be negative")
	}
	if c.Transparency.PollInterval < 0 {
		return fmt.Errorf("transparency.poll_interval cannot be negative")
	}

	return nil
}
