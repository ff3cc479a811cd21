package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the bootstrap config looked up in the config directory.
const BootstrapFileName = "pilot_config.yaml"

// Channel transports.
const (
	TransportWebSocket = "websocket"
	TransportZeroMQ    = "zeromq"
)

// BootstrapConfig holds the process-level settings read at startup.
type BootstrapConfig struct {
	Logging LoggingConfig   `yaml:"logging"`
	Server  ServerConfig    `yaml:"server"`
	Channel ChannelConfig   `yaml:"channel"`
	ZeroMQ  ZeroMQBootstrap `yaml:"zeromq"`
	Data    DataConfig      `yaml:"data"`
	Trace   TraceConfig     `yaml:"trace"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// ServerConfig configures the relay HTTP server.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// ChannelConfig configures the outbound messaging channel used by `pilot drive`.
type ChannelConfig struct {
	Transport           string `yaml:"transport"`
	URL                 string `yaml:"url"`
	ReconnectIntervalMs int    `yaml:"reconnect_interval_ms"`
}

// ZeroMQBootstrap holds the device bridge endpoints.
//
// The relay binds PublishAddress (commands to the device) and
// SubscribeAddress (telemetry from the device). A pilot using the zeromq
// transport connects to DevicePublishAddress/DeviceSubscribeAddress instead.
type ZeroMQBootstrap struct {
	PublishAddress         string `yaml:"publish_address"`
	SubscribeAddress       string `yaml:"subscribe_address"`
	DevicePublishAddress   string `yaml:"device_publish_address"`
	DeviceSubscribeAddress string `yaml:"device_subscribe_address"`
}

// DataConfig locates the operational streams configuration.
type DataConfig struct {
	Directory         string `yaml:"directory"`
	StreamsConfigFile string `yaml:"streams_config_file"`
}

// TraceConfig enables the CSV command trace when File is set.
type TraceConfig struct {
	File string `yaml:"file"`
}

// StreamsConfigPath returns the full path of the operational streams file.
func (c *BootstrapConfig) StreamsConfigPath() string {
	return filepath.Join(c.Data.Directory, c.Data.StreamsConfigFile)
}

// LoadBootstrapConfig loads pilot_config.yaml from configDir and fills in
// defaults for optional fields.
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	path := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", path, err)
	}

	var cfg BootstrapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", path, err)
	}

	if cfg.Data.Directory == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.directory")
	}
	if cfg.Data.StreamsConfigFile == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.streams_config_file")
	}
	if !filepath.IsAbs(cfg.Data.Directory) {
		cfg.Data.Directory = filepath.Join(configDir, cfg.Data.Directory)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Channel.Transport == "" {
		cfg.Channel.Transport = TransportWebSocket
	}
	switch cfg.Channel.Transport {
	case TransportWebSocket, TransportZeroMQ:
	default:
		return nil, fmt.Errorf("invalid channel.transport '%s' in bootstrap config", cfg.Channel.Transport)
	}
	if cfg.Channel.ReconnectIntervalMs <= 0 {
		cfg.Channel.ReconnectIntervalMs = 1000
	}

	return &cfg, nil
}
