// Package gateway provides the HTTP front end that forwards generation
// requests to an upstream language-model server and relays its output back
// to clients as plain text fragments or one aggregated JSON result.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/papercomputeco/lmgate/gateway/worker"
	"github.com/papercomputeco/lmgate/pkg/metrics"
	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/stream"
	"github.com/papercomputeco/lmgate/pkg/upstream"
)

const defaultShutdownTimeout = 10 * time.Second

// Gateway relays generation requests to the upstream and records every
// finished generation through its worker pool.
type Gateway struct {
	config     Config
	upstream   *upstream.Client
	relay      *stream.Relay
	workerPool *worker.Pool
	logger     *slog.Logger
	server     *fiber.App

	// baseCtx parents every upstream request; Close cancels it.
	baseCtx   context.Context
	cancelAll context.CancelFunc

	// streams tracks relay goroutines that outlive their handler.
	streams sync.WaitGroup
}

// New creates a new Gateway. The driver receives one record per finished
// generation, written asynchronously.
func New(config Config, driver storage.Driver, logger *slog.Logger) (*Gateway, error) {
	if config.DefaultModel == "" {
		config.DefaultModel = DefaultModel
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}

	wp, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: config.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	baseCtx, cancelAll := context.WithCancel(context.Background())

	g := &Gateway{
		config: config,
		upstream: upstream.NewClient(upstream.Config{
			BaseURL:        config.UpstreamURL,
			ConnectTimeout: config.ConnectTimeout,
		}),
		relay: stream.NewRelay(
			stream.WithDelimiter(config.Delimiter),
			stream.WithField(config.Field),
		),
		workerPool: wp,
		logger:     logger,
		server:     app,
		baseCtx:    baseCtx,
		cancelAll:  cancelAll,
	}

	app.Post("/api/generate", g.handleGenerate)
	app.Post("/api/models/download", g.handleDownload)
	app.Get("/api/models", g.handleListModels)
	app.Get("/healthz", g.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return g, nil
}

// Run starts the gateway on the configured listening address.
func (g *Gateway) Run() error {
	g.logger.Info("starting gateway",
		"listen", g.config.ListenAddr,
		"upstream", g.upstream.BaseURL(),
		"delimiter", g.relay.Delimiter().Name(),
	)

	return g.server.Listen(g.config.ListenAddr)
}

// RunWithListener starts the gateway using the provided listener.
func (g *Gateway) RunWithListener(listener net.Listener) error {
	g.logger.Info("starting gateway",
		"listen", listener.Addr().String(),
		"upstream", g.upstream.BaseURL(),
		"delimiter", g.relay.Delimiter().Name(),
	)

	return g.server.Listener(listener)
}

// Close stops accepting requests, gives in-flight responses a grace period,
// cancels whatever upstream streams remain and drains the worker pool.
func (g *Gateway) Close() error {
	err := g.server.ShutdownWithTimeout(g.config.ShutdownTimeout)
	g.cancelAll()
	g.streams.Wait()
	g.workerPool.Close()
	return err
}
