package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// handleDownload asks the upstream to pull a model and waits for it.
func (g *Gateway) handleDownload(c *fiber.Ctx) error {
	var req DownloadRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body: " + err.Error()})
	}
	if req.LLMName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "llm_name is required"})
	}

	g.logger.Info("pulling model", "model", req.LLMName)

	ctx, cancel := g.requestContext(c)
	defer cancel()

	if err := g.upstream.Pull(ctx, req.LLMName); err != nil {
		g.logger.Error("model pull failed", "model", req.LLMName, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: fmt.Sprintf("failed to download model %s: %v", req.LLMName, err),
		})
	}

	return c.JSON(MessageResponse{
		Message: fmt.Sprintf("Model %s downloaded successfully", req.LLMName),
	})
}

// handleListModels returns the upstream's model entries verbatim.
func (g *Gateway) handleListModels(c *fiber.Ctx) error {
	ctx, cancel := g.requestContext(c)
	defer cancel()

	models, err := g.upstream.ListModels(ctx)
	if err != nil {
		g.logger.Error("listing models failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "failed to list models: " + err.Error(),
		})
	}

	return c.JSON(ModelsResponse{Models: models})
}

// handleHealth probes the upstream version endpoint.
func (g *Gateway) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := g.requestContext(c)
	defer cancel()

	version, err := g.upstream.Version(ctx)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status:   "unavailable",
			Upstream: g.upstream.BaseURL(),
			Error:    err.Error(),
		})
	}

	return c.JSON(HealthResponse{
		Status:   "ok",
		Upstream: g.upstream.BaseURL(),
		Version:  version,
	})
}

// requestContext scopes an upstream call that finishes inside the handler.
// It ends with the request's user context or when the gateway closes.
func (g *Gateway) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.UserContext())
	stop := context.AfterFunc(g.baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
