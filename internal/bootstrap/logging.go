package bootstrap

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	logopts "github.com/kart-io/dataagent/pkg/options/logger"
)

// LoggingName 日志初始化器名称，其他初始化器以它为依赖。
const LoggingName = "logging"

// LoggingInitializer handles logging system initialization.
type LoggingInitializer struct {
	opts       *logopts.Options
	appName    string
	appVersion string
}

// NewLoggingInitializer creates a new LoggingInitializer.
func NewLoggingInitializer(opts *logopts.Options, appName, appVersion string) *LoggingInitializer {
	return &LoggingInitializer{
		opts:       opts,
		appName:    appName,
		appVersion: appVersion,
	}
}

// Name returns the name of the initializer.
func (li *LoggingInitializer) Name() string {
	return LoggingName
}

// Dependencies returns nil, logging is initialized first.
func (li *LoggingInitializer) Dependencies() []string {
	return nil
}

// Initialize installs the global logger with service metadata.
func (li *LoggingInitializer) Initialize(_ context.Context) error {
	li.opts.AddInitialField("service.name", li.appName)
	li.opts.AddInitialField("service.version", li.appVersion)

	if err := li.opts.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Infow("Starting service",
		"app", li.appName,
		"version", li.appVersion,
	)
	return nil
}

// Shutdown flushes buffered log entries.
func (li *LoggingInitializer) Shutdown(_ context.Context) error {
	_ = logger.Flush()
	return nil
}
