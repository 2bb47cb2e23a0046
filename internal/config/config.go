package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config models slotline.yml.
type Config struct {
	Scheduling struct {
		BusinessHourStart int    `yaml:"business_hour_start"`
		BusinessHourEnd   int    `yaml:"business_hour_end"`
		StepMinutes       int    `yaml:"step_minutes"`
		MaxResults        int    `yaml:"max_results"`
		Timezone          string `yaml:"timezone"`
	} `yaml:"scheduling"`
	Negotiation struct {
		MaxBatch                int  `yaml:"max_batch"`
		MaxSlots                int  `yaml:"max_slots"`
		AllowConfirmAfterExpiry bool `yaml:"allow_confirm_after_expiry"`
	} `yaml:"negotiation"`
	Video struct {
		Providers map[string]VideoProvider `yaml:"providers"`
	} `yaml:"video"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Redis    struct {
		URL    string `yaml:"url"`
		Stream string `yaml:"stream"`
	} `yaml:"redis"`
}

// VideoProvider describes an HTTP room-creation endpoint. The bearer token is
// read from TokenEnv at startup so it never lives in the file.
type VideoProvider struct {
	Endpoint       string `yaml:"endpoint"`
	TokenEnv       string `yaml:"token_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	s := c.Scheduling
	if s.BusinessHourStart < 0 || s.BusinessHourEnd > 24 || s.BusinessHourStart >= s.BusinessHourEnd {
		return fmt.Errorf("scheduling business hours %d-%d invalid", s.BusinessHourStart, s.BusinessHourEnd)
	}
	if s.StepMinutes <= 0 {
		return fmt.Errorf("scheduling.step_minutes must be positive")
	}
	if s.MaxResults <= 0 {
		return fmt.Errorf("scheduling.max_results must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Negotiation.MaxBatch <= 0 {
		return fmt.Errorf("negotiation.max_batch must be positive")
	}
	if c.Negotiation.MaxSlots <= 0 {
		return fmt.Errorf("negotiation.max_slots must be positive")
	}
	for name, p := range c.Video.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("video.providers contains empty name")
		}
		if strings.TrimSpace(p.Endpoint) == "" {
			return fmt.Errorf("video provider %s missing endpoint", name)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d] missing url", i)
		}
	}
	if c.Redis.URL != "" && c.Redis.Stream == "" {
		return fmt.Errorf("redis.stream is required when redis.url is set")
	}
	return nil
}

// Location resolves the scheduling timezone; empty means the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduling.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduling.timezone: %w", err)
	}
	return loc, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "slotline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// the document keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `scheduling:
  business_hour_start: 9
  business_hour_end: 18
  step_minutes: 30
  max_results: 100
  timezone: ""

negotiation:
  # responses accepted per submission
  max_batch: 5
  max_slots: 20
  allow_confirm_after_expiry: false

video:
  providers: {}

webhooks: []

redis:
  url: ""
  stream: slotline.events
`
