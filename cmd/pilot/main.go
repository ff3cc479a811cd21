package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-teleop/pilot/pkg/config"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

const defaultConfigDir = "./config"

var (
	configDir string
	logLevel  string
	// serve
	port int
	// drive
	devicePath string
	inputPath  string
	deadZone   float64
	transport  string
	channelURL string
	traceFile  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pilot",
		Short:         "joystick to motion command pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding pilot_config.yaml (env PILOT_CONFIG_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the relay server between clients and the device link",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP port (env PORT, default server.http_port)")

	driveCmd := &cobra.Command{
		Use:   "drive",
		Short: "read joystick input and publish motion commands",
		Args:  cobra.NoArgs,
		RunE:  runDrive,
	}
	driveCmd.Flags().StringVar(&devicePath, "device", "", "Linux joystick device, e.g. /dev/input/js0")
	driveCmd.Flags().StringVar(&inputPath, "input", "-", "JSON-lines gesture file when no device is given ('-' for stdin)")
	driveCmd.Flags().Float64Var(&deadZone, "dead-zone", 0.1, "stick dead zone as a fraction of full travel")
	driveCmd.Flags().StringVar(&transport, "transport", "", "override channel.transport (websocket|zeromq)")
	driveCmd.Flags().StringVar(&channelURL, "url", "", "override channel.url")
	driveCmd.Flags().StringVar(&traceFile, "trace", "", "override trace.file")

	rootCmd.AddCommand(serveCmd, driveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadBootstrap resolves the config directory and sets up logging.
func loadBootstrap() (*config.BootstrapConfig, customlog.Logger, error) {
	dir := configDir
	if dir == "" {
		dir = os.Getenv("PILOT_CONFIG_DIR")
	}
	if dir == "" {
		dir = defaultConfigDir
	}

	cfg, err := config.LoadBootstrapConfig(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load bootstrap config from %s: %w", dir, err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infof("Loaded bootstrap configuration from %s", dir)
	return cfg, logger, nil
}
