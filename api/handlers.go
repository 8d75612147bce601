package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/lmgate/pkg/storage"
)

// MaxListLimit caps the number of records a single list call returns.
const MaxListLimit = 1000

// ErrorResponse is the JSON body of every failed call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GenerationsResponse lists recorded generations, newest first.
type GenerationsResponse struct {
	Count       int               `json:"count"`
	Generations []*storage.Record `json:"generations"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListGenerations handles GET /v1/generations.
// Query parameters:
//   - limit (optional, default 50, max 1000): number of records to return
func (s *Server) handleListGenerations(c *fiber.Ctx) error {
	limit := storage.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "limit must be a positive integer",
			})
		}
		limit = min(parsed, MaxListLimit)
	}

	records, err := s.driver.List(c.Context(), limit)
	if err != nil {
		s.logger.Error("listing generations failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list generations"})
	}
	if records == nil {
		records = []*storage.Record{}
	}

	return c.JSON(GenerationsResponse{
		Count:       len(records),
		Generations: records,
	})
}

// handleGetGeneration returns a single record by its id.
func (s *Server) handleGetGeneration(c *fiber.Ctx) error {
	id := c.Params("id")

	record, err := s.driver.Get(c.Context(), id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "generation not found"})
		}
		s.logger.Error("getting generation failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get generation"})
	}

	return c.JSON(record)
}
