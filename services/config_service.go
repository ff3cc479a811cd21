package services

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/open-teleop/pilot/pkg/config"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// ErrNoConfig is returned while no streams configuration has been loaded.
var ErrNoConfig = errors.New("no streams configuration loaded")

// ConfigPublisher announces configuration changes to devices.
type ConfigPublisher interface {
	PublishConfigUpdatedNotification() error
}

// StreamConfigService manages the operational streams configuration.
type StreamConfigService interface {
	LoadConfig() error
	GetCurrentConfig() *config.Config
	GetCurrentConfigYAML() ([]byte, error)
	UpdateConfig(newConfigYAML []byte) error
	SetPublisher(p ConfigPublisher)
	OnChange(fn func(*config.Config))
}

type streamConfigService struct {
	path      string
	logger    customlog.Logger
	publisher ConfigPublisher
	current   *config.Config
	listeners []func(*config.Config)
	mu        sync.RWMutex
	// updateMu serializes updates so listeners see them in order.
	updateMu sync.Mutex
}

// NewStreamConfigService creates the service and loads path. A failed
// initial load is logged; the config can still be provided through
// UpdateConfig.
func NewStreamConfigService(path string, logger customlog.Logger) (StreamConfigService, error) {
	if path == "" {
		return nil, fmt.Errorf("streams configuration path cannot be empty")
	}
	if logger == nil {
		logger = customlog.NewNopLogger()
	}

	s := &streamConfigService{path: path, logger: logger}
	if err := s.LoadConfig(); err != nil {
		logger.Warnf("Initial load of streams config '%s' failed: %v", path, err)
		return s, nil
	}

	logger.Infof("StreamConfigService initialized for path: %s", path)
	return s, nil
}

// LoadConfig reads and validates the streams file from disk.
func (s *streamConfigService) LoadConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading streams configuration from: %s", s.path)
	cfg, err := config.LoadConfig(s.path)
	if err != nil {
		s.current = nil
		return err
	}
	s.current = cfg
	s.logger.Infof("Loaded streams configuration ID: %s, Version: %s, %d streams", cfg.ConfigID, cfg.Version, len(cfg.Streams))
	return nil
}

// GetCurrentConfig returns the active configuration. Callers must not modify it.
func (s *streamConfigService) GetCurrentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// GetCurrentConfigYAML returns the streams file as stored on disk.
func (s *streamConfigService) GetCurrentConfigYAML() ([]byte, error) {
	s.mu.RLock()
	loaded := s.current != nil
	s.mu.RUnlock()
	if !loaded {
		return nil, ErrNoConfig
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("error reading streams config file '%s': %w", s.path, err)
	}
	return data, nil
}

// UpdateConfig validates newConfigYAML, persists it, makes it active and
// notifies listeners and the publisher. Validation failures wrap
// config.ErrInvalidConfig.
func (s *streamConfigService) UpdateConfig(newConfigYAML []byte) error {
	newCfg, err := config.ParseConfig(newConfigYAML)
	if err != nil {
		s.logger.Errorf("Rejected streams configuration: %v", err)
		if errors.Is(err, config.ErrInvalidConfig) {
			return err
		}
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if newCfg.ConfigID == "" || newCfg.Version == "" {
		return fmt.Errorf("%w: config_id and version are required", config.ErrInvalidConfig)
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.Lock()
	if err := s.persistLocked(newConfigYAML); err != nil {
		s.mu.Unlock()
		return err
	}
	oldID := "N/A"
	if s.current != nil {
		oldID = s.current.ConfigID
	}
	s.current = newCfg
	listeners := make([]func(*config.Config), len(s.listeners))
	copy(listeners, s.listeners)
	publisher := s.publisher
	s.mu.Unlock()

	s.logger.Infof("Updated streams configuration. ID %s -> %s, Version: %s", oldID, newCfg.ConfigID, newCfg.Version)

	for _, fn := range listeners {
		fn(newCfg)
	}

	if publisher != nil {
		go func() {
			if err := publisher.PublishConfigUpdatedNotification(); err != nil {
				s.logger.Warnf("Failed to publish config update notification: %v", err)
			}
		}()
	}
	return nil
}

func (s *streamConfigService) persistLocked(data []byte) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing streams config file '%s': %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("error replacing streams config file '%s': %w", s.path, err)
	}
	s.logger.Infof("Persisted streams configuration to %s", s.path)
	return nil
}

// SetPublisher injects the change publisher after initialization.
func (s *streamConfigService) SetPublisher(p ConfigPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// OnChange registers fn to run after every successful update.
func (s *streamConfigService) OnChange(fn func(*config.Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
