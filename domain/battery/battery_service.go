package battery

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/pilot/pkg/channel"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// MessageType is the envelope type devices report battery state with.
const MessageType = "battery_capacity"

// State is the last reported battery state.
type State struct {
	Capacity  int       `json:"capacity"`  // Percent, -1 when no battery is detected
	Charging  bool      `json:"charging"`
	Timestamp time.Time `json:"timestamp"`
	Known     bool      `json:"known"`
}

// report accepts both {"data": 87} and {"data": {"capacity": 87, ...}}.
type report struct {
	Capacity int  `json:"capacity"`
	Charging bool `json:"charging"`
}

// BatteryService caches the device's battery reports.
type BatteryService struct {
	mu     sync.RWMutex
	state  State
	logger customlog.Logger
	now    func() time.Time
}

// NewBatteryService creates a new battery service instance
func NewBatteryService(logger customlog.Logger) *BatteryService {
	return &BatteryService{logger: logger, now: time.Now}
}

// HandleEnvelope updates the state from a battery envelope.
func (s *BatteryService) HandleEnvelope(env channel.Envelope) {
	if err := s.update(env); err != nil {
		s.logger.Warnf("Ignoring battery report: %v", err)
	}
}

func (s *BatteryService) update(env channel.Envelope) error {
	if env.Type != MessageType {
		return fmt.Errorf("unexpected message type %s", env.Type)
	}

	var r report
	var capacity int
	if err := env.Decode(&capacity); err == nil {
		r.Capacity = capacity
	} else if err := env.Decode(&r); err != nil {
		return fmt.Errorf("bad battery data %s: %w", string(env.Data), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{
		Capacity:  r.Capacity,
		Charging:  r.Charging,
		Timestamp: s.now(),
		Known:     true,
	}
	return nil
}

// GetState returns the last reported state.
func (s *BatteryService) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// GetStateHandler handles API requests for the battery state
func (s *BatteryService) GetStateHandler(c *fiber.Ctx) error {
	state := s.GetState()
	if !state.Known {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no battery report received yet",
		})
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"battery": state,
	})
}

