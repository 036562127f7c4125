// Package app provides the ingestor application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/dataagent/cmd/ingestor/app/options"
	"github.com/kart-io/dataagent/internal/ingestor"
	"github.com/kart-io/dataagent/pkg/app"
)

// commandDesc is the description of the command.
const commandDesc = `Data Agent Ingestor

Turns data descriptors into searchable knowledge collections.

This server provides:
  - Schema, relationship and sample extraction from MySQL and PostgreSQL
  - Document loading from object storage and file servers
  - LLM fingerprints and agent names stored per descriptor
  - Job intake over HTTP, NATS JetStream and Redis Streams`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(ingestor.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()
		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx)
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
