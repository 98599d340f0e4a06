package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/controller"
	"caddx-mqtt-controller/internal/status"
	"caddx-mqtt-controller/internal/store"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		return 1
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		return 1
	}

	logger, logCloser := newLogger(cfg)
	slog.SetDefault(logger)
	defer logCloser.Close()
	logger.Info("caddx-mqtt-controller starting", "version", version)

	ignoredZones, err := parseIgnoredZones(cfg.Panel.IgnoredZones)
	if err != nil {
		logger.Error("parse ignored zones", "err", err)
		return 1
	}
	port, err := serial.Open(cfg.Serial.Port, &serial.Mode{
		BaudRate: cfg.Serial.Baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		logger.Error("open serial port", "port", cfg.Serial.Port, "err", err)
		return 1
	}

	b := bus.New(logger)
	ctrl := controller.New(port, cfg.Panel.UniqueID, cfg.Panel.MaxZones, b, logger)
	ctrl.SetIgnoredZones(ignoredZones)

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		port.Close()
		return 1
	}
	writer := store.NewWriter(db, logger)
	unsubWriter := writer.Attach(b)

	statusSrv := status.NewServer(ctrl, db, b, cfg.Status.Listen, logger)
	if cfg.Status.Listen != "" {
		statusSrv.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- ctrl.Run(ctx)
	}()

	mqtt := initMQTT(ctrl, b, cfg, statusSrv, logger)
	auto := initAutomation(b, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	runStopped := false
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
	case err := <-runErrCh:
		runStopped = true
		if err != nil && ctx.Err() == nil {
			logger.Error("controller stopped unexpectedly", "err", err)
			exitCode = 1
		}
	}
	signal.Stop(sigCh)
	cancel()
	if !runStopped {
		<-runErrCh // wait for Run to observe ctx cancellation and return
	}

	if err := ctrl.Close(); err != nil {
		logger.Warn("close serial port", "err", err)
	}

	auto.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	statusSrv.Stop(shutdownCtx)

	unsubWriter()
	writer.Close()
	if err := db.Close(); err != nil {
		logger.Warn("close store", "err", err)
	}

	mqtt.Stop() // publishes offline and disconnects last, after every other subsystem has quiesced

	logger.Info("goodbye")
	return exitCode
}
