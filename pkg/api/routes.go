// Package api exposes the relay over HTTP: the /pubsub WebSocket, health,
// stream statistics, battery state, server-side teleop and the streams
// configuration.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/open-teleop/pilot/domain/battery"
	"github.com/open-teleop/pilot/domain/relay"
	"github.com/open-teleop/pilot/domain/teleop"
	customlog "github.com/open-teleop/pilot/pkg/log"
	"github.com/open-teleop/pilot/services"
)

// Server groups what the routes need.
type Server struct {
	Hub           *relay.Hub
	Registry      *relay.StreamRegistry
	Battery       *battery.BatteryService
	ConfigService services.StreamConfigService
	Teleop        *teleop.TeleopService
	DeviceLinked  bool
	Logger        customlog.Logger
}

// NewApp builds the Fiber app with every route mounted.
func NewApp(s Server) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "pilot relay",
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestLogger(s.Logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(HealthResponse{
			Status:  "healthy",
			Clients: len(s.Hub.Clients()),
			Device:  s.DeviceLinked,
		})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/streams", func(c *fiber.Ctx) error {
		return c.JSON(StreamsResponse{Status: "success", Streams: s.Registry.Stats()})
	})
	if s.Battery != nil {
		v1.Get("/battery", s.Battery.GetStateHandler)
	}
	if s.Teleop != nil {
		v1.Post("/teleop/:stream/:event", s.Teleop.CommandHandler)
	}
	if s.ConfigService != nil {
		RegisterConfigRoutes(app, s.ConfigService, s.Logger)
	}

	RegisterPubSubRoutes(app, s.Hub, s.Logger)
	return app
}

// ErrorHandler renders errors as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

// requestLogger logs each request through the pilot logger instead of
// Fiber's stdout logger.
func requestLogger(logger customlog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		logger.Debugf("%s %s -> %d", c.Method(), c.Path(), c.Response().StatusCode())
		return err
	}
}
