package motion

import (
	"sync"
	"time"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/clock"
	"github.com/open-teleop/pilot/pkg/config"
	"github.com/open-teleop/pilot/pkg/joystick"
	customlog "github.com/open-teleop/pilot/pkg/log"
	"github.com/open-teleop/pilot/pkg/ratelimit"
)

// State of a stream's engine.
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Published describes one command handed to the channel.
type Published struct {
	At      time.Time
	Stream  string
	Type    string
	Command CommandVector
	Burst   bool
}

// Observer is notified after every publish, on the publishing goroutine.
type Observer func(Published)

// Engine maps one stream's readings to envelopes. Moves go through the rate
// limiter; an End sends a burst of zero commands that bypasses it.
type Engine struct {
	stream    config.StreamConfig
	publisher channel.Publisher
	limiter   *ratelimit.Limiter
	clock     clock.Clock
	logger    customlog.Logger

	mu       sync.Mutex
	state    State
	observer Observer
}

// NewEngine creates an engine for a stream whose defaults are already
// applied (see config.Config.Stream). The limiter may be shared between
// engines.
func NewEngine(stream config.StreamConfig, publisher channel.Publisher, limiter *ratelimit.Limiter, c clock.Clock, logger customlog.Logger) *Engine {
	if c == nil {
		c = clock.Real()
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter(c, stream.Cooldown())
	}
	limiter.SetCooldown(stream.Name, stream.Cooldown())

	return &Engine{
		stream:    stream,
		publisher: publisher,
		limiter:   limiter,
		clock:     c,
		logger:    logger.WithField("stream", stream.Name),
	}
}

// SetObserver installs a publish observer. Nil removes it.
func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stream returns the engine's stream configuration.
func (e *Engine) Stream() config.StreamConfig {
	return e.stream
}

// Move handles a stick movement. It reports whether a command was published
// or dropped by the rate limiter.
func (e *Engine) Move(raw *joystick.RawReading) bool {
	reading, notes := Sanitize(joystick.Normalize(raw))
	for _, note := range notes {
		e.logger.Debugf("Sanitized reading: %s", note)
	}

	e.mu.Lock()
	if e.state == StateIdle {
		e.logger.Debugf("Stream became active")
	}
	e.state = StateActive
	e.mu.Unlock()

	cmd := Map(reading, e.stream)
	return e.limiter.TryPublish(e.stream.Name, func() {
		e.publish(reading, cmd, false)
	})
}

// End handles a stick release: the engine goes idle and burstCount zero
// commands are sent burstInterval apart, the first one immediately. The
// release reading is ignored.
func (e *Engine) End(_ *joystick.RawReading) {
	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()

	count := e.stream.BurstCount
	interval := e.stream.BurstInterval()
	e.logger.Debugf("Stream released, sending %d stop commands every %v", count, interval)

	for i := 0; i < count; i++ {
		if i == 0 {
			e.publishZero()
			continue
		}
		e.clock.AfterFunc(time.Duration(i)*interval, e.publishZero)
	}
}

func (e *Engine) publishZero() {
	e.publish(joystick.Reading{}, CommandVector{}, true)
}

func (e *Engine) publish(reading joystick.Reading, cmd CommandVector, burst bool) {
	var data interface{}
	if e.stream.Mode == config.ModeRaw {
		data = reading
	} else {
		data = map[string]map[string]float64{
			"data": {
				e.stream.PrimaryKey:   cmd.Primary,
				e.stream.SecondaryKey: cmd.Secondary,
			},
		}
	}

	env, err := channel.NewEnvelope(e.stream.Type, data)
	if err != nil {
		e.logger.Errorf("Failed to build envelope: %v", err)
		return
	}
	e.publisher.Publish(env)

	e.mu.Lock()
	observer := e.observer
	e.mu.Unlock()
	if observer != nil {
		observer(Published{
			At:      e.clock.Now(),
			Stream:  e.stream.Name,
			Type:    e.stream.Type,
			Command: cmd,
			Burst:   burst,
		})
	}
}
