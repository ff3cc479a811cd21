package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/open-teleop/pilot/domain/battery"
	"github.com/open-teleop/pilot/domain/relay"
	"github.com/open-teleop/pilot/domain/teleop"
	"github.com/open-teleop/pilot/pkg/api"
	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/clock"
	"github.com/open-teleop/pilot/pkg/config"
	"github.com/open-teleop/pilot/pkg/zeromq"
	"github.com/open-teleop/pilot/services"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadBootstrap()
	if err != nil {
		return err
	}

	configService, err := services.NewStreamConfigService(cfg.StreamsConfigPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize streams config service: %w", err)
	}

	registry := relay.NewStreamRegistry(logger)
	if current := configService.GetCurrentConfig(); current != nil {
		registry.LoadFromConfig(current)
	}
	configService.OnChange(registry.LoadFromConfig)

	batteryService := battery.NewBatteryService(logger)

	var device channel.Publisher
	var bridge *zeromq.Bridge
	if cfg.ZeroMQ.PublishAddress != "" && cfg.ZeroMQ.SubscribeAddress != "" {
		bridge, err = zeromq.NewBridge(cfg.ZeroMQ, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize device bridge: %w", err)
		}
		defer bridge.Stop()
		device = bridge
	} else {
		logger.Warnf("No device link configured, client messages will not be forwarded")
	}

	hub := relay.NewHub(registry, device, logger)

	var teleopService *teleop.TeleopService
	if device != nil {
		teleopService = teleop.NewTeleopService(device, clock.Real(), logger)
		teleopService.Configure(configService.GetCurrentConfig())
		configService.OnChange(teleopService.Configure)
		hub.RegisterHandler(teleop.MessageType, teleopService.MessageHandler())
	}

	if bridge != nil {
		broadcast := hub.DeviceHandler()
		bridge.RegisterHandler(battery.MessageType, func(env channel.Envelope) {
			batteryService.HandleEnvelope(env)
			broadcast(env)
		})
		bridge.SetFallbackHandler(broadcast)

		current := func() *config.Config {
			if c := configService.GetCurrentConfig(); c != nil {
				return c
			}
			return &config.Config{}
		}
		publisher := zeromq.NewConfigPublisher(bridge, current, logger)
		zeromq.RegisterConfigHandlers(bridge, publisher, logger)
		configService.SetPublisher(publisher)

		if err := bridge.Start(); err != nil {
			return fmt.Errorf("failed to start device bridge: %w", err)
		}
	}

	app := api.NewApp(api.Server{
		Hub:           hub,
		Registry:      registry,
		Battery:       batteryService,
		ConfigService: configService,
		Teleop:        teleopService,
		DeviceLinked:  bridge != nil,
		Logger:        logger,
	})

	listenPort := cfg.Server.HTTPPort
	if p := os.Getenv("PORT"); p != "" {
		if listenPort, err = strconv.Atoi(p); err != nil {
			return fmt.Errorf("invalid PORT %q: %w", p, err)
		}
	}
	if port != 0 {
		listenPort = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %d", listenPort)
		serverErr <- app.Listen(":" + strconv.Itoa(listenPort))
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	logger.Infof("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Infof("Server exited properly")
	return nil
}
