package zeromq

import (
	"github.com/open-teleop/pilot/pkg/config"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// Configuration topics on the device link.
const (
	TopicConfigRequest      = "configuration.request"
	TopicConfigUpdate       = "configuration.update"
	TopicConfigNotification = "configuration.notification"
)

// JSONPublisher publishes a value as the data of an envelope.
type JSONPublisher interface {
	PublishJSON(messageType string, data interface{}) error
}

// ConfigPublisher publishes streams configuration changes to devices.
type ConfigPublisher struct {
	publisher JSONPublisher
	current   func() *config.Config
	logger    customlog.Logger
}

// NewConfigPublisher creates a publisher reading the live config from current.
func NewConfigPublisher(publisher JSONPublisher, current func() *config.Config, logger customlog.Logger) *ConfigPublisher {
	return &ConfigPublisher{
		publisher: publisher,
		current:   current,
		logger:    logger,
	}
}

// PublishConfigUpdate publishes the full current configuration.
func (p *ConfigPublisher) PublishConfigUpdate() error {
	cfg := p.current()
	p.logger.Infof("Publishing configuration update (ID: %s)", cfg.ConfigID)
	return p.publisher.PublishJSON(TopicConfigUpdate, cfg)
}

// PublishConfigUpdatedNotification publishes a short notice that the config changed.
func (p *ConfigPublisher) PublishConfigUpdatedNotification() error {
	cfg := p.current()
	p.logger.Infof("Publishing configuration update notification")

	notification := map[string]interface{}{
		"config_id":    cfg.ConfigID,
		"version":      cfg.Version,
		"last_updated": cfg.LastUpdated,
		"streams":      cfg.StreamNames(),
	}
	return p.publisher.PublishJSON(TopicConfigNotification, notification)
}
