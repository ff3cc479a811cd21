// Package pilot routes joystick gestures to one motion engine per
// configured stream.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/clock"
	"github.com/open-teleop/pilot/pkg/config"
	"github.com/open-teleop/pilot/pkg/joystick"
	customlog "github.com/open-teleop/pilot/pkg/log"
	"github.com/open-teleop/pilot/pkg/motion"
	"github.com/open-teleop/pilot/pkg/ratelimit"
)

// ErrUnknownStream is returned for gestures on a stream with no configuration.
var ErrUnknownStream = errors.New("unknown stream")

// EventSource yields gesture events until io.EOF.
type EventSource interface {
	Next() (joystick.Event, error)
}

// Controller owns the engines. Move and End are expected from a single
// input goroutine.
type Controller struct {
	engines map[string]*motion.Engine
	names   []string
	logger  customlog.Logger

	mu     sync.Mutex
	warned map[string]bool
}

// NewController builds an engine for every stream in cfg. All engines share
// one rate limiter and publish through publisher.
func NewController(cfg *config.Config, publisher channel.Publisher, c clock.Clock, logger customlog.Logger) *Controller {
	if c == nil {
		c = clock.Real()
	}
	limiter := ratelimit.NewLimiter(c, ratelimit.DefaultCooldown)

	ctrl := &Controller{
		engines: make(map[string]*motion.Engine, len(cfg.Streams)),
		logger:  logger,
		warned:  make(map[string]bool),
	}
	for _, name := range cfg.StreamNames() {
		stream, _ := cfg.Stream(name)
		ctrl.engines[name] = motion.NewEngine(stream, publisher, limiter, c, logger)
		ctrl.names = append(ctrl.names, name)
		logger.Infof("Stream %s -> %s (%s, max %.2f/%.2f, cooldown %v, burst %dx%v)",
			name, stream.Type, stream.Mode, stream.MaxPrimary, stream.MaxSecondary,
			stream.Cooldown(), stream.BurstCount, stream.BurstInterval())
	}
	return ctrl
}

// Streams lists the configured streams.
func (c *Controller) Streams() []string {
	return append([]string(nil), c.names...)
}

// Engine returns the engine of a stream.
func (c *Controller) Engine(stream string) (*motion.Engine, bool) {
	e, ok := c.engines[stream]
	return e, ok
}

// SetObserver installs o on every engine.
func (c *Controller) SetObserver(o motion.Observer) {
	for _, e := range c.engines {
		e.SetObserver(o)
	}
}

// Bind checks input bindings against the configuration. Unconfigured names
// are warned about and returned; those inputs stay inactive.
func (c *Controller) Bind(streams ...string) []string {
	var missing []string
	for _, name := range streams {
		if _, ok := c.engines[name]; !ok {
			c.warnUnknown(name)
			missing = append(missing, name)
		}
	}
	return missing
}

// Move forwards a stick movement to the stream's engine.
func (c *Controller) Move(stream string, raw *joystick.RawReading) error {
	e, err := c.lookup(stream)
	if err != nil {
		return err
	}
	e.Move(raw)
	return nil
}

// End forwards a stick release to the stream's engine.
func (c *Controller) End(stream string, raw *joystick.RawReading) error {
	e, err := c.lookup(stream)
	if err != nil {
		return err
	}
	e.End(raw)
	return nil
}

// Handle applies one gesture event.
func (c *Controller) Handle(ev joystick.Event) error {
	switch ev.Kind {
	case joystick.EventMove:
		return c.Move(ev.Stream, ev.Raw)
	case joystick.EventEnd:
		return c.End(ev.Stream, ev.Raw)
	default:
		return fmt.Errorf("unknown event kind %q on stream %s", ev.Kind, ev.Stream)
	}
}

// Run feeds events from source until it is exhausted or ctx ends. Bad input
// lines and unknown streams are logged and skipped.
func (c *Controller) Run(ctx context.Context, source EventSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := source.Next()
		if err != nil {
			var lineErr *joystick.LineError
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case errors.As(err, &lineErr):
				c.logger.Warnf("Skipping input: %v", err)
				continue
			default:
				return fmt.Errorf("reading input: %w", err)
			}
		}
		if err := c.Handle(ev); err != nil && !errors.Is(err, ErrUnknownStream) {
			c.logger.Warnf("Skipping event: %v", err)
		}
	}
}

func (c *Controller) lookup(stream string) (*motion.Engine, error) {
	e, ok := c.engines[stream]
	if !ok {
		c.warnUnknown(stream)
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}
	return e, nil
}

func (c *Controller) warnUnknown(stream string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warned[stream] {
		return
	}
	c.warned[stream] = true
	c.logger.Warnf("Stream %s is not configured, its input is ignored", stream)
}
