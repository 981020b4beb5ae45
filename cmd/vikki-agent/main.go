// Package main is the entry point for the vikki telemetry agent.
// It loads configuration, builds the agent and runs it either as a Windows
// service or as a foreground process until a signal arrives.
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cpp11nullptr/vikki/internal/agent"
	"github.com/cpp11nullptr/vikki/internal/config"
	"github.com/cpp11nullptr/vikki/internal/sensor"
	"github.com/cpp11nullptr/vikki/internal/service"
)

const defaultConfigPath = "vikki-agent.yaml"

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.StringP("config", "c", "", "Path to configuration file (yaml, toml or json)")
	initConfig  = flag.Bool("init-config", false, "Write a default configuration to --config and exit")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("vikki-agent %s\n", version)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = config.Locate()
	}

	if *initConfig {
		if path == "" {
			path = defaultConfigPath
		}
		if err := config.WriteConfig(starterConfig(), path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
		return
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting vikki agent",
		zap.String("version", version),
		zap.String("config", path))

	svc := service.New(logger, func(ctx context.Context) error {
		a, err := agent.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		return a.Run(ctx)
	})
	if err := svc.Run(); err != nil {
		logger.Error("Agent failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Agent stopped")
}

// starterConfig is the configuration written by --init-config: in-memory
// storage and every builtin sensor active.
func starterConfig() *config.Config {
	cfg := config.DefaultConfig()
	enabled := true
	cfg.Storage = config.StorageConfig{Enabled: &enabled, Name: "memory"}
	for _, m := range sensor.Builtins() {
		cfg.Sensors = append(cfg.Sensors, config.SensorConfig{Active: true, Name: m.New().Name()})
	}
	return cfg
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a JSON log file.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(file),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}
