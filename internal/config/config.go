package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/robofleet/orctl/internal/models"
	"github.com/robofleet/orctl/internal/trigger"
)

// TargetEnv is the default Orchestrator target read from the environment.
// A targets file can define additional named targets.
type TargetEnv struct {
	URL          string `env:"URL"`
	Account      string `env:"ACCOUNT"`
	Tenant       string `env:"TENANT"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scopes       string `env:"SCOPES"`
	AuthURL      string `env:"AUTH_URL"`
	Insecure     bool   `env:"INSECURE"`
	CACertFile   string `env:"CA_CERT_FILE"`
}

// Config holds all configuration (environment + optional targets file).
type Config struct {
	Listen       string        `env:"ORCTL_LISTEN" envDefault:":8080" yaml:"listen"`
	PollInterval time.Duration `env:"ORCTL_POLL_INTERVAL" envDefault:"10s" yaml:"poll_interval"`
	Timeout      time.Duration `env:"ORCTL_TIMEOUT" envDefault:"30m" yaml:"timeout"`

	Orchestrator TargetEnv `envPrefix:"ORCH_" yaml:"-"`

	Targets []models.Target `env:"-" yaml:"targets"`
}

// Load reads configuration from a .env file (if present), environment
// variables, and an optional YAML targets file. File targets are appended
// to the environment-defined default target.
func Load(targetsFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if targetsFile != "" {
		if err := cfg.loadFile(targetsFile); err != nil {
			return nil, err
		}
	}

	cfg.Sanitize()
	return cfg, nil
}

// loadFile overlays values from a YAML targets file. Environment values win
// for scalar settings; targets from the file are always appended.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if c.Listen == ":8080" && file.Listen != "" {
		c.Listen = file.Listen
	}
	if file.PollInterval > 0 {
		c.PollInterval = file.PollInterval
	}
	if file.Timeout > 0 {
		c.Timeout = file.Timeout
	}
	c.Targets = append(c.Targets, file.Targets...)

	return nil
}

// Sanitize applies guardrails to values loaded from env and file.
func (c *Config) Sanitize() {
	if c.PollInterval < time.Second {
		c.PollInterval = trigger.DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = trigger.DefaultTimeout
	}
	for i := range c.Targets {
		if c.Targets[i].Scopes == "" {
			c.Targets[i].Scopes = models.DefaultScopes
		}
	}
}

// Target returns the named target, or the environment default when name is
// empty.
func (c *Config) Target(name string) (*models.Target, error) {
	if name == "" {
		return c.envTarget()
	}
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i], nil
		}
	}
	return nil, fmt.Errorf("target %q not defined", name)
}

func (c *Config) envTarget() (*models.Target, error) {
	e := c.Orchestrator
	t := &models.Target{
		Name:         "default",
		URL:          e.URL,
		Account:      e.Account,
		Tenant:       e.Tenant,
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		Scopes:       e.Scopes,
		AuthURL:      e.AuthURL,
		Insecure:     e.Insecure,
	}
	if t.Scopes == "" {
		t.Scopes = models.DefaultScopes
	}
	if e.CACertFile != "" {
		pem, err := os.ReadFile(e.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA cert %s: %w", e.CACertFile, err)
		}
		t.CACert = string(pem)
	}
	return t, nil
}
