package teleop

import (
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/pilot/domain/pilot"
	"github.com/open-teleop/pilot/domain/relay"
	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/clock"
	"github.com/open-teleop/pilot/pkg/config"
	"github.com/open-teleop/pilot/pkg/joystick"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// MessageType is the pub/sub envelope carrying a joystick.Event for
// server-side mapping.
const MessageType = "joystick"

// TeleopService maps joystick gestures received by the relay and publishes
// the resulting commands to the device.
type TeleopService struct {
	device channel.Publisher
	clock  clock.Clock
	logger customlog.Logger

	mu         sync.RWMutex
	controller *pilot.Controller
}

// NewTeleopService creates a new teleop service instance
func NewTeleopService(device channel.Publisher, c clock.Clock, logger customlog.Logger) *TeleopService {
	return &TeleopService{device: device, clock: c, logger: logger}
}

// Configure rebuilds the engines from cfg. Bursts already scheduled by the
// previous engines still complete.
func (s *TeleopService) Configure(cfg *config.Config) {
	if cfg == nil {
		return
	}
	ctrl := pilot.NewController(cfg, s.device, s.clock, s.logger)

	s.mu.Lock()
	s.controller = ctrl
	s.mu.Unlock()
	s.logger.Infof("Teleop configured with %d streams", len(ctrl.Streams()))
}

// Handle applies one gesture.
func (s *TeleopService) Handle(ev joystick.Event) error {
	s.mu.RLock()
	ctrl := s.controller
	s.mu.RUnlock()
	if ctrl == nil {
		return errors.New("teleop is not configured")
	}
	return ctrl.Handle(ev)
}

// MessageHandler handles "joystick" envelopes from pub/sub clients.
func (s *TeleopService) MessageHandler() relay.MessageHandler {
	return func(env channel.Envelope, _ relay.Sender) {
		var ev joystick.Event
		if err := env.Decode(&ev); err != nil {
			s.logger.Warnf("Bad joystick message: %v", err)
			return
		}
		if err := s.Handle(ev); err != nil {
			s.logger.Debugf("Joystick message dropped: %v", err)
		}
	}
}

// CommandHandler handles POST /api/v1/teleop/:stream/:event with an
// optional reading as body.
func (s *TeleopService) CommandHandler(c *fiber.Ctx) error {
	ev := joystick.Event{
		Stream: c.Params("stream"),
		Kind:   joystick.EventKind(c.Params("event")),
	}
	switch ev.Kind {
	case joystick.EventMove, joystick.EventEnd:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "event must be move or end",
		})
	}

	if body := c.Body(); len(body) > 0 {
		var raw joystick.RawReading
		if err := c.BodyParser(&raw); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		ev.Raw = &raw
	}

	if err := s.Handle(ev); err != nil {
		code := fiber.StatusServiceUnavailable
		if errors.Is(err, pilot.ErrUnknownStream) {
			code = fiber.StatusNotFound
		}
		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status": "command received",
		"stream": ev.Stream,
		"event":  ev.Kind,
	})
}
