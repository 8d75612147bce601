// Package mcp provides an MCP (Model Context Protocol) server that lets
// agents generate text through the gateway's upstream and inspect recorded
// generations.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/stream"
	"github.com/papercomputeco/lmgate/pkg/upstream"
	"github.com/papercomputeco/lmgate/pkg/utils"
)

type Config struct {
	// Upstream is the language-model server client
	Upstream *upstream.Client

	// Relay decodes upstream generation streams
	Relay *stream.Relay

	// DefaultModel is used when a generate call names no model
	DefaultModel string

	// Driver enables the recent_generations tool (optional)
	Driver storage.Driver

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the generation tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "lmgate",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Upstream == nil {
			return nil, errors.New("upstream client is required")
		}
		if c.Relay == nil {
			return nil, errors.New("relay is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        generateToolName,
			Description: generateDescription,
		}, s.handleGenerate)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        listModelsToolName,
			Description: listModelsDescription,
		}, s.handleListModels)

		if c.Driver != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        recentToolName,
				Description: recentDescription,
			}, s.handleRecentGenerations)
		}
	}

	s.mcpServer = mcpServer

	// Stateless streamable HTTP handler
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
