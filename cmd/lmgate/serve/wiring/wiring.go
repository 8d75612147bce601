// Package wiring builds the shared runtime pieces of the serve commands
// (logger, storage, event stream, gateway config) from resolved viper
// settings.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/papercomputeco/lmgate/api/mcp"
	"github.com/papercomputeco/lmgate/gateway"
	"github.com/papercomputeco/lmgate/pkg/config"
	"github.com/papercomputeco/lmgate/pkg/eventstream"
	"github.com/papercomputeco/lmgate/pkg/eventstream/kafka"
	"github.com/papercomputeco/lmgate/pkg/eventstream/nop"
	"github.com/papercomputeco/lmgate/pkg/logger"
	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/storage/inmemory"
	"github.com/papercomputeco/lmgate/pkg/storage/postgres"
	"github.com/papercomputeco/lmgate/pkg/storage/sqlite"
	"github.com/papercomputeco/lmgate/pkg/stream"
	"github.com/papercomputeco/lmgate/pkg/upstream"
)

// Flags is the flag registry shared by every serve command.
var Flags = config.FlagSet{
	config.FlagGatewayListen:           {Name: "gateway-listen", Shorthand: "g", ViperKey: "gateway.listen", Description: "Address for the gateway to listen on"},
	config.FlagAPIListen:               {Name: "api-listen", Shorthand: "a", ViperKey: "api.listen", Description: "Address for the history API to listen on"},
	config.FlagGatewayListenStandalone: {Name: "listen", Shorthand: "l", ViperKey: "gateway.listen", Description: "Address for the gateway to listen on"},
	config.FlagAPIListenStandalone:     {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the history API to listen on"},
	config.FlagUpstream:                {Name: "upstream", Shorthand: "u", ViperKey: "gateway.upstream", Description: "Upstream model server URL"},
	config.FlagDelimiter:               {Name: "delimiter", ViperKey: "gateway.delimiter", Description: "Upstream record delimiter (newline, blank-line)"},
	config.FlagField:                   {Name: "field", ViperKey: "gateway.field", Description: "Upstream record field carrying generated text"},
	config.FlagDefaultModel:            {Name: "default-model", Shorthand: "m", ViperKey: "gateway.default_model", Description: "Model used when a request names none"},
	config.FlagConnectTimeout:          {Name: "connect-timeout", ViperKey: "gateway.connect_timeout", Description: "Upstream connection attempt timeout"},
	config.FlagSQLite:                  {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: in-memory)"},
	config.FlagPostgres:                {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string (default: in-memory)"},
	config.FlagKafkaBrokers:            {Name: "kafka-brokers", ViperKey: "events.kafka_brokers", Description: "Comma-separated Kafka brokers for generation events"},
	config.FlagKafkaTopic:              {Name: "kafka-topic", ViperKey: "events.kafka_topic", Description: "Kafka topic for generation events"},
}

// NewLogger builds the serve logger: pretty terminal output, plus JSON
// records appended to logFile when it is set. The returned func closes the
// log file.
func NewLogger(debug bool, logFile string) (*slog.Logger, func() error, error) {
	terminal := logger.New(logger.WithDebug(debug), logger.WithPretty(true))
	if logFile == "" {
		return terminal, func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(logger.WithDebug(debug), logger.WithJSON(true), logger.WithWriter(f))
	return logger.Multi(terminal, file), f.Close, nil
}

// OpenStorage opens the configured record store. PostgreSQL and SQLite are
// mutually exclusive; with neither set records are kept in memory.
func OpenStorage(ctx context.Context, v *viper.Viper, log *slog.Logger) (storage.Driver, error) {
	sqlitePath := v.GetString("storage.sqlite_path")
	postgresDSN := v.GetString("storage.postgres_dsn")

	switch {
	case sqlitePath != "" && postgresDSN != "":
		return nil, errors.New("storage.sqlite_path and storage.postgres_dsn are mutually exclusive")
	case postgresDSN != "":
		driver, err := postgres.NewDriver(ctx, postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("creating PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil
	case sqlitePath != "":
		driver, err := sqlite.NewDriver(ctx, sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("creating SQLite driver: %w", err)
		}
		log.Info("using SQLite storage", "path", sqlitePath)
		return driver, nil
	default:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}
}

// OpenPublisher returns a Kafka publisher when brokers are configured and
// a no-op publisher otherwise.
func OpenPublisher(v *viper.Viper, log *slog.Logger) (eventstream.Publisher, error) {
	events := config.EventsConfig{
		KafkaBrokers: v.GetString("events.kafka_brokers"),
		KafkaTopic:   v.GetString("events.kafka_topic"),
	}

	brokers := events.Brokers()
	if len(brokers) == 0 {
		log.Debug("event publishing disabled")
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   events.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Kafka publisher: %w", err)
	}

	log.Info("publishing generation events", "brokers", brokers, "topic", events.KafkaTopic)
	return pub, nil
}

// GatewayConfig resolves the gateway configuration. publisher may be nil.
func GatewayConfig(v *viper.Viper, publisher eventstream.Publisher) (gateway.Config, error) {
	delim, err := stream.ParseDelimiter(v.GetString("gateway.delimiter"))
	if err != nil {
		return gateway.Config{}, err
	}

	timeout, err := config.GatewayConfig{
		ConnectTimeout: v.GetString("gateway.connect_timeout"),
	}.ConnectTimeoutDuration()
	if err != nil {
		return gateway.Config{}, err
	}

	return gateway.Config{
		ListenAddr:     v.GetString("gateway.listen"),
		UpstreamURL:    v.GetString("gateway.upstream"),
		ConnectTimeout: timeout,
		Delimiter:      delim,
		Field:          v.GetString("gateway.field"),
		DefaultModel:   v.GetString("gateway.default_model"),
		Publisher:      publisher,
	}, nil
}

// MCPHandler builds the MCP endpoint served by the history API. Its tools
// reach the same upstream as the gateway.
func MCPHandler(v *viper.Viper, driver storage.Driver, log *slog.Logger) (http.Handler, error) {
	cfg, err := GatewayConfig(v, nil)
	if err != nil {
		return nil, err
	}

	server, err := mcp.NewServer(mcp.Config{
		Upstream: upstream.NewClient(upstream.Config{
			BaseURL:        cfg.UpstreamURL,
			ConnectTimeout: cfg.ConnectTimeout,
		}),
		Relay: stream.NewRelay(
			stream.WithDelimiter(cfg.Delimiter),
			stream.WithField(cfg.Field),
		),
		DefaultModel: cfg.DefaultModel,
		Driver:       driver,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	return server.Handler(), nil
}

// WaitForShutdown blocks until a server fails or the process receives
// SIGINT or SIGTERM.
func WaitForShutdown(log *slog.Logger, errChan <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}
