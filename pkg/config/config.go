package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Stream payload modes.
const (
	// ModeVector publishes {"data": {<primary_key>: p, <secondary_key>: s}}.
	ModeVector = "vector"
	// ModeRaw publishes the sanitized joystick reading itself.
	ModeRaw = "raw"
)

// Built-in stream defaults.
const (
	DefaultCooldownMs      = 50
	DefaultBurstCount      = 3
	DefaultBurstIntervalMs = 10
	DefaultPrimaryKey      = "primary"
	DefaultSecondaryKey    = "secondary"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid streams config")

// Config is the operational configuration: one entry per joystick stream.
type Config struct {
	Version     string         `yaml:"version" json:"version"`
	ConfigID    string         `yaml:"config_id" json:"config_id"`
	LastUpdated string         `yaml:"lastUpdated" json:"lastUpdated"`
	RobotID     string         `yaml:"robot_id" json:"robot_id"`
	Defaults    DefaultsConfig `yaml:"defaults" json:"defaults"`
	Streams     []StreamConfig `yaml:"streams" json:"streams"`
}

// DefaultsConfig holds values applied to streams that leave them unset.
type DefaultsConfig struct {
	CooldownMs      int `yaml:"cooldown_ms" json:"cooldown_ms"`
	BurstCount      int `yaml:"burst_count" json:"burst_count"`
	BurstIntervalMs int `yaml:"burst_interval_ms" json:"burst_interval_ms"`
}

// StreamConfig is the per-stream sign/scale table plus wire details.
// Signs of 0 mean +1.
type StreamConfig struct {
	Name            string  `yaml:"name" json:"name"`
	Type            string  `yaml:"type" json:"type"`
	Mode            string  `yaml:"mode,omitempty" json:"mode,omitempty"`
	MaxPrimary      float64 `yaml:"max_primary" json:"max_primary"`
	MaxSecondary    float64 `yaml:"max_secondary" json:"max_secondary"`
	PrimarySign     float64 `yaml:"primary_sign,omitempty" json:"primary_sign,omitempty"`
	SecondarySign   float64 `yaml:"secondary_sign,omitempty" json:"secondary_sign,omitempty"`
	PrimaryKey      string  `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	SecondaryKey    string  `yaml:"secondary_key,omitempty" json:"secondary_key,omitempty"`
	CooldownMs      int     `yaml:"cooldown_ms,omitempty" json:"cooldown_ms,omitempty"`
	BurstCount      int     `yaml:"burst_count,omitempty" json:"burst_count,omitempty"`
	BurstIntervalMs int     `yaml:"burst_interval_ms,omitempty" json:"burst_interval_ms,omitempty"`
}

// Cooldown returns the rate limiter window.
func (s StreamConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownMs) * time.Millisecond
}

// BurstInterval returns the spacing between stop commands.
func (s StreamConfig) BurstInterval() time.Duration {
	return time.Duration(s.BurstIntervalMs) * time.Millisecond
}

// LoadConfig reads and validates a streams config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates streams config YAML.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks stream names, modes, signs and payload keys.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Streams))
	for i, s := range c.Streams {
		if s.Name == "" {
			return fmt.Errorf("%w: streams[%d] has no name", ErrInvalidConfig, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate stream '%s'", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true
		if s.Type == "" {
			return fmt.Errorf("%w: stream '%s' has no type", ErrInvalidConfig, s.Name)
		}
		switch s.Mode {
		case "", ModeVector, ModeRaw:
		default:
			return fmt.Errorf("%w: stream '%s' has unknown mode '%s'", ErrInvalidConfig, s.Name, s.Mode)
		}
		if !validSign(s.PrimarySign) || !validSign(s.SecondarySign) {
			return fmt.Errorf("%w: stream '%s' signs must be 1 or -1", ErrInvalidConfig, s.Name)
		}
		if s.CooldownMs < 0 || s.BurstCount < 0 || s.BurstIntervalMs < 0 {
			return fmt.Errorf("%w: stream '%s' has negative timing values", ErrInvalidConfig, s.Name)
		}
		if resolved := applyDefaults(s, c.Defaults); resolved.Mode == ModeVector && resolved.PrimaryKey == resolved.SecondaryKey {
			return fmt.Errorf("%w: stream '%s' uses key '%s' for both primary and secondary", ErrInvalidConfig, s.Name, resolved.PrimaryKey)
		}
	}
	return nil
}

func validSign(v float64) bool {
	return v == 0 || v == 1 || v == -1
}

// Stream returns the named stream with defaults applied.
func (c *Config) Stream(name string) (StreamConfig, bool) {
	for _, s := range c.Streams {
		if s.Name == name {
			return applyDefaults(s, c.Defaults), true
		}
	}
	return StreamConfig{}, false
}

// StreamByType returns the first stream publishing envelopes of the given type.
func (c *Config) StreamByType(envelopeType string) (StreamConfig, bool) {
	for _, s := range c.Streams {
		if s.Type == envelopeType {
			return applyDefaults(s, c.Defaults), true
		}
	}
	return StreamConfig{}, false
}

// StreamNames lists configured stream names in file order.
func (c *Config) StreamNames() []string {
	names := make([]string, 0, len(c.Streams))
	for _, s := range c.Streams {
		names = append(names, s.Name)
	}
	return names
}

// applyDefaults fills unset stream fields from the config defaults, then
// from the built-in defaults.
func applyDefaults(s StreamConfig, defaults DefaultsConfig) StreamConfig {
	result := s

	if result.Mode == "" {
		result.Mode = ModeVector
	}
	if result.PrimarySign == 0 {
		result.PrimarySign = 1
	}
	if result.SecondarySign == 0 {
		result.SecondarySign = 1
	}
	if result.PrimaryKey == "" {
		result.PrimaryKey = DefaultPrimaryKey
	}
	if result.SecondaryKey == "" {
		result.SecondaryKey = DefaultSecondaryKey
	}
	if result.CooldownMs == 0 {
		result.CooldownMs = firstPositive(defaults.CooldownMs, DefaultCooldownMs)
	}
	if result.BurstCount == 0 {
		result.BurstCount = firstPositive(defaults.BurstCount, DefaultBurstCount)
	}
	if result.BurstIntervalMs == 0 {
		result.BurstIntervalMs = firstPositive(defaults.BurstIntervalMs, DefaultBurstIntervalMs)
	}

	return result
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
