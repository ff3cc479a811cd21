package zeromq

import (
	"github.com/open-teleop/pilot/pkg/channel"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// NewConfigRequestHandler answers a device's configuration.request with a
// configuration.update carrying the current streams config.
func NewConfigRequestHandler(publisher *ConfigPublisher, logger customlog.Logger) channel.Handler {
	return func(env channel.Envelope) {
		logger.Debugf("Processing configuration request")
		if err := publisher.PublishConfigUpdate(); err != nil {
			logger.Errorf("Failed to answer configuration request: %v", err)
		}
	}
}

// RegisterConfigHandlers wires configuration requests on the bridge.
func RegisterConfigHandlers(bridge *Bridge, publisher *ConfigPublisher, logger customlog.Logger) {
	bridge.RegisterHandler(TopicConfigRequest, NewConfigRequestHandler(publisher, logger))
	logger.Infof("Registered configuration handlers")
}
