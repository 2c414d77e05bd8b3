/*
config.go - Server configuration

PURPOSE:
  Loads the fee engine's runtime configuration from a YAML file, then
  applies environment overrides. Command-line flags are applied last by
  cmd/server.

PRECEDENCE (lowest to highest):
  1. Defaults()
  2. YAML file (-config)
  3. .env file and FEE_ENGINE_* environment variables
  4. Flags

ENVIRONMENT:
  FEE_ENGINE_PORT                HTTP port
  FEE_ENGINE_DB                  SQLite path (":memory:" allowed)
  FEE_ENGINE_LOG_LEVEL           debug, info, warn, error
  FEE_ENGINE_SCHEDULER_ENABLED   true / false
  FEE_ENGINE_SCHEDULER_INTERVAL  Go duration, e.g. "1m"

EXAMPLE:
  server:
    port: 8080
  db: fees.db
  log_level: info
  scheduler:
    enabled: true
    interval: 1m
  deployment:
    id: nrg-weekly
    calendar: {preset: weekly}
    grace_period: 24
    ...
  genesis:
    - address: "0xfee"
      amount: 100000

SEE ALSO:
  - factory/deployment.go: The deployment block
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/fee-engine/deployments"
	"github.com/warp/fee-engine/factory"
)

const envPrefix = "FEE_ENGINE_"

type Config struct {
	Server    ServerConfig           `yaml:"server"`
	DB        string                 `yaml:"db"`
	LogLevel  string                 `yaml:"log_level"`
	Scheduler SchedulerConfig        `yaml:"scheduler"`
	Deploy    factory.DeploymentJSON `yaml:"deployment"`
	// Genesis mints whole-token balances when the ledger is empty.
	Genesis []GenesisMint `yaml:"genesis"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type SchedulerConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

type GenesisMint struct {
	Address string           `yaml:"address"`
	Amount  factory.Quantity `yaml:"amount"`
}

// Duration reads Go duration strings ("30s", "1h") from YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Defaults is a development setup on the weekly calendar.
func Defaults() Config {
	var dep factory.DeploymentJSON
	// StandardJSON is generated from a literal and always parses.
	_ = yaml.Unmarshal([]byte(deployments.StandardJSON("default", deployments.CalendarWeekly, deployments.Wallets{
		Operations: "0xoperations",
		Reward:     "0xrewards",
		Processor:  "0xfeeprocessor",
		Owner:      "0xowner",
	})), &dep)

	return Config{
		Server:    ServerConfig{Port: 8080},
		DB:        "fees.db",
		LogLevel:  "info",
		Scheduler: SchedulerConfig{Enabled: true, Interval: Duration{time.Minute}},
		Deploy:    dep,
	}
}

// Load reads path (optional) over the defaults, then applies the
// environment. A missing .env is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes a YAML document over the defaults without touching the
// environment.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	if err := decode(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// decode merges data into cfg. A deployment block replaces the default
// deployment instead of being merged into it.
func decode(data []byte, cfg *Config) error {
	var probe struct {
		Deploy *yaml.Node `yaml:"deployment"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if probe.Deploy != nil {
		cfg.Deploy = factory.DeploymentJSON{}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(envPrefix + "DB"); ok {
		c.DB = v
	}
	if v, ok := lookup(envPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(envPrefix + "SCHEDULER_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSCHEDULER_ENABLED: %w", envPrefix, err)
		}
		c.Scheduler.Enabled = enabled
	}
	if v, ok := lookup(envPrefix + "SCHEDULER_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSCHEDULER_INTERVAL: %w", envPrefix, err)
		}
		c.Scheduler.Interval = Duration{d}
	}
	return nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.DB == "" {
		return errors.New("db path is required")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval.Duration <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
