package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/lmgate/gateway/header"
	"github.com/papercomputeco/lmgate/gateway/worker"
	"github.com/papercomputeco/lmgate/pkg/metrics"
	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/stream"
	"github.com/papercomputeco/lmgate/pkg/upstream"
)

// handleGenerate forwards one generation request upstream. The upstream
// status is checked before any relay activity, so rejections and transport
// faults are reported as JSON errors with no partial output.
func (g *Gateway) handleGenerate(c *fiber.Ctx) error {
	startTime := time.Now()

	var req GenerationRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body: " + err.Error()})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "prompt is required"})
	}
	if req.Model == "" {
		req.Model = g.config.DefaultModel
	}

	record := &storage.Record{
		ID:        uuid.NewString(),
		Model:     req.Model,
		Prompt:    req.Prompt,
		Streaming: req.Streaming(),
		StartedAt: startTime.UTC(),
	}
	c.Set(header.RequestIDHeader, record.ID)

	// The upstream request must not be tied to the fasthttp RequestCtx:
	// fasthttp recycles it when the handler returns, while a streaming
	// relay keeps reading in its own goroutine.
	ctx, cancel := context.WithCancel(g.baseCtx)

	body, err := g.upstream.Generate(ctx, upstream.GenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Options: req.Options,
	}, header.UpstreamRequestHeaders(c))
	if err != nil {
		cancel()
		return g.upstreamFailure(c, record, err)
	}

	if !record.Streaming {
		defer cancel()
		defer body.Close()
		return g.drainToJSON(ctx, c, body, record)
	}

	// io.Pipe gives per-fragment backpressure: each pw.Write blocks until
	// fasthttp has taken the chunk for the socket. When the client goes
	// away fasthttp closes the reader, the next write fails, and the relay
	// stops pulling from upstream.
	pr, pw := io.Pipe()
	g.streams.Add(1)
	go g.streamToPipe(ctx, cancel, body, pw, record)

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// drainToJSON handles buffered mode.
func (g *Gateway) drainToJSON(ctx context.Context, c *fiber.Ctx, body io.Reader, record *storage.Record) error {
	text, stats, err := g.relay.Drain(ctx, body)
	record.Fragments = stats.Fragments
	record.Bytes = stats.Bytes
	record.UpstreamStatus = http.StatusOK

	if err != nil {
		metrics.RecordUpstreamError(metrics.ErrorKindMidStream)
		g.logger.Error("upstream stream failed", "id", record.ID, "error", err)
		record.Status = storage.StatusFailed
		record.Error = err.Error()
		g.finish(record, fiber.StatusBadGateway)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "upstream stream failed: " + err.Error()})
	}

	record.Status = storage.StatusCompleted
	record.Response = text
	g.finish(record, fiber.StatusOK)
	return c.JSON(GenerationResponse{Response: text})
}

// streamToPipe runs the streaming relay and owns the upstream body.
func (g *Gateway) streamToPipe(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, pw *io.PipeWriter, record *storage.Record) {
	defer g.streams.Done()
	defer cancel()
	defer body.Close()

	// A client that stops reading leaves pw.Write blocked, and io.Pipe does
	// not watch ctx. Closing the pipe on cancellation unblocks it.
	stop := context.AfterFunc(ctx, func() { pw.CloseWithError(ctx.Err()) })
	defer stop()

	stats, err := g.relay.Stream(ctx, body, pw)
	record.Fragments = stats.Fragments
	record.Bytes = stats.Bytes
	record.UpstreamStatus = http.StatusOK

	switch {
	case err == nil:
		record.Status = storage.StatusCompleted
	case errors.Is(err, stream.ErrSink), errors.Is(err, context.Canceled):
		g.logger.Debug("client stopped reading", "id", record.ID, "error", err)
		record.Status = storage.StatusCancelled
		record.Error = err.Error()
	default:
		metrics.RecordUpstreamError(metrics.ErrorKindMidStream)
		g.logger.Error("upstream stream failed", "id", record.ID, "error", err)
		record.Status = storage.StatusFailed
		record.Error = err.Error()
	}

	g.finish(record, fiber.StatusOK)

	// A non-nil error aborts the chunked response without a terminating
	// chunk, so the client sees the stream end abruptly.
	pw.CloseWithError(err)
}

// upstreamFailure maps a failed Generate call to a JSON error response.
func (g *Gateway) upstreamFailure(c *fiber.Ctx, record *storage.Record, err error) error {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		metrics.RecordUpstreamError(metrics.ErrorKindStatus)
		g.logger.Warn("upstream rejected generation",
			"id", record.ID,
			"status", statusErr.Code,
			"body", statusErr.Body,
		)

		code := statusErr.Code
		if code < http.StatusBadRequest {
			code = fiber.StatusBadGateway
		}

		record.Status = storage.StatusRejected
		record.UpstreamStatus = statusErr.Code
		record.Error = err.Error()
		g.finish(record, code)
		return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
	}

	metrics.RecordUpstreamError(metrics.ErrorKindTransport)
	g.logger.Error("upstream request failed", "id", record.ID, "error", err)

	record.Status = storage.StatusFailed
	record.Error = err.Error()
	g.finish(record, fiber.StatusBadGateway)
	return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: fmt.Sprintf("upstream request failed: %v", err)})
}

// finish stamps the record, updates metrics and hands the record to the
// worker pool.
func (g *Gateway) finish(record *storage.Record, httpStatus int) {
	record.CompletedAt = time.Now().UTC()

	mode := metrics.ModeBuffered
	if record.Streaming {
		mode = metrics.ModeStream
	}
	metrics.RecordGeneration(mode, httpStatus, record.Fragments, record.Duration())

	g.logger.Debug("generation finished",
		"id", record.ID,
		"model", record.Model,
		"mode", mode,
		"status", record.Status,
		"fragments", record.Fragments,
		"bytes", record.Bytes,
		"duration", record.Duration(),
	)

	g.workerPool.Enqueue(worker.Job{Record: record})
}
