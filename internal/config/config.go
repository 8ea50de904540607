package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jgoulah/waterscraper/internal/scraper"
)

// Config holds the application configuration
type Config struct {
	Credentials   Credentials `yaml:"credentials"`
	PortalURL     string      `yaml:"portal_url,omitempty"`    // Override for the portal root (fallback: scraper.DefaultPortalURL)
	DaysToFetch   int         `yaml:"days_to_fetch,omitempty"` // Fallback: 90
	Workers       int         `yaml:"workers,omitempty"`       // Concurrent month fetches (fallback: 4)
	Browser       bool        `yaml:"browser,omitempty"`       // Drive the portal through headless Chrome
	LogLevel      string      `yaml:"log_level,omitempty"`
	HomeAssistant HAConfig    `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig  `yaml:"mqtt,omitempty"`
}

// Credentials holds the portal login
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://yourdomain.local:5050"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.bvk_water_consumption"
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // fallback: "water_meter"
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Credentials live in this file
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// GetPortalURL returns the portal root URL
func (c *Config) GetPortalURL() string {
	if c.PortalURL == "" {
		return scraper.DefaultPortalURL
	}
	return c.PortalURL
}

// GetDaysToFetch returns the number of days to fetch with a default of 90 (3 months)
func (c *Config) GetDaysToFetch() int {
	if c.DaysToFetch <= 0 {
		return 90
	}
	return c.DaysToFetch
}

// GetWorkers returns the number of concurrent month fetches
func (c *Config) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetTopicPrefix returns the MQTT topic prefix
func (m MQTTConfig) GetTopicPrefix() string {
	if m.TopicPrefix == "" {
		return "water_meter"
	}
	return m.TopicPrefix
}

// HasCredentials reports whether both username and password are set
func (c *Config) HasCredentials() bool {
	return c.Credentials.Username != "" && c.Credentials.Password != ""
}
