package application

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-objstream/pkg/config"
	zlog "github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/metrics"
)

const (
	// DefaultConfigPath 是未指定配置文件时尝试读取的路径，文件不存在时使用默认配置。
	DefaultConfigPath = "./objstream.yaml"
	// ConfigPathEnv 指定配置文件路径的环境变量。
	ConfigPathEnv = "OBJSTREAM_CONFIG_FILE_PATH"
)

// Application is the runtime container for a tool built on the serialization engine.
// It owns configuration, the global logger and the metrics registry.
type Application struct {
	cfg      *config.Config
	registry prometheus.Registerer
}

// New creates a new Application. A nil registerer means prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Application {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Application{registry: registry}
}

// Run loads configuration, initializes logging and registers metrics.
// The configuration file is resolved with the following priority:
//  1. Default: ./objstream.yaml (optional)
//  2. Env: OBJSTREAM_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
func (a *Application) Run(args []string) error {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := zlog.SetupLogger(&cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	metrics.Register(a.registry)

	zlog.Info("application started",
		zap.Bool("protected", cfg.Save.Protected),
		zap.Int("workers", cfg.Save.Workers),
		zap.Int64("streamMaxBytes", cfg.Stream.MaxBytes))
	return nil
}

// Config returns the loaded configuration, or nil before Run.
func (a *Application) Config() *config.Config {
	return a.cfg
}

// Close flushes buffered logs.
func (a *Application) Close() error {
	_ = zlog.Sync()
	return nil
}

// loadConfig resolves the config file path and loads it.
func (a *Application) loadConfig(args []string) (*config.Config, error) {
	configPath, explicit, err := resolveConfigPath(args)
	if err != nil {
		return nil, err
	}
	if !explicit {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	return cfg, nil
}

func resolveConfigPath(args []string) (string, bool, error) {
	configPath, explicit := DefaultConfigPath, false
	if envPath := strings.TrimSpace(os.Getenv(ConfigPathEnv)); envPath != "" {
		configPath, explicit = envPath, true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", false, fmt.Errorf("missing value after --config")
			}
			configPath, explicit = args[i+1], true
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok && val != "" {
			configPath, explicit = val, true
		}
	}
	return configPath, explicit, nil
}
