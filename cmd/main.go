package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"easyir/internal/api"
	"easyir/internal/config"
	"easyir/internal/device"
	"easyir/internal/downloader"
	"easyir/internal/ha"
	"easyir/internal/ircodes"
	"easyir/internal/setup"
	"easyir/internal/transmit"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	settings, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting EasyIR bridge",
		zap.String("url", settings.HAURL),
		zap.String("data_dir", settings.DataDir))

	// Create HA client
	client := ha.NewClient(settings.HAURL, settings.HAToken, logger)

	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	defer client.Disconnect()

	tx := transmit.New(client, logger)
	registry := device.NewRegistry()

	// Bring up configured devices; a broken code table skips that one device
	devices, err := config.LoadDevices(settings.DevicesPath())
	if err != nil {
		logger.Fatal("Failed to load devices config", zap.Error(err))
	}

	for _, entry := range devices.Devices {
		if err := buildDevice(entry, settings.CodesDir(), registry, client, tx, logger); err != nil {
			logger.Error("Skipping device",
				zap.String("device", entry.ID),
				zap.Error(err))
		}
	}
	logger.Info("Devices loaded", zap.Int("count", len(registry.List())))

	// Setup flow with live activation of saved devices
	repoURL := settings.RepoURL
	if repoURL == "" {
		repoURL = downloader.DefaultRepoURL
	}
	dl := downloader.NewClient(repoURL, logger)

	activate := func(entry config.Device) error {
		return buildDevice(entry, settings.CodesDir(), registry, client, tx, logger)
	}
	setupMgr := setup.NewManager(settings.CodesDir(), settings.DevicesPath(), client, dl, tx, logger, activate)

	server := api.NewServer(registry, setupMgr, logger, settings.APIPort)
	server.Start()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("EasyIR bridge running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
}

// buildDevice loads a device's code table, constructs the matching adapter
// and registers it. A missing or unparsable table fails that one device.
func buildDevice(entry config.Device, codesDir string, registry *device.Registry,
	client ha.HAClient, tx *transmit.Transmitter, logger *zap.Logger) error {

	path := ircodes.TablePath(codesDir, entry.Kind, entry.Code)

	switch entry.Kind {
	case string(device.KindClimate):
		table, err := ircodes.LoadClimateTable(path)
		if err != nil {
			return err
		}

		climate := device.NewClimate(entry.ID, entry.Name, entry.Controller,
			entry.TemperatureSensor, table, client, tx, logger)
		if err := registry.Add(climate); err != nil {
			return err
		}

		if err := climate.TrackSensor(); err != nil {
			logger.Warn("Temperature sensor tracking unavailable",
				zap.String("device", entry.ID),
				zap.Error(err))
		}
		return nil

	case string(device.KindMediaPlayer):
		table, err := ircodes.LoadMediaTable(path)
		if err != nil {
			return err
		}

		player := device.NewMediaPlayer(entry.ID, entry.Name, entry.Controller,
			table, tx, logger)
		return registry.Add(player)

	default:
		return fmt.Errorf("unknown device kind %q", entry.Kind)
	}
}
