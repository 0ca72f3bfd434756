package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"chunker/chunking"
	"chunker/types"
)

type ProcessHandler struct {
	chunker *chunking.Chunker
	logger  *slog.Logger
}

func NewProcessHandler(chunker *chunking.Chunker, logger *slog.Logger) *ProcessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessHandler{
		chunker: chunker,
		logger:  logger,
	}
}

func (h *ProcessHandler) parseRequest(c *fiber.Ctx) (types.ProcessRequest, error) {
	var req types.ProcessRequest
	if c.BodyParser(&req) != nil {
		return req, ErrBadRequest()
	}
	req.ApplyDefaults()
	if errors := types.Validate(&req); len(errors) > 0 {
		return req, NewValidationError(errors)
	}
	return req, nil
}

func (h *ProcessHandler) HandleProcess(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}

	resp, err := h.chunker.Process(c.UserContext(), req)
	if errors.Is(err, chunking.ErrProcessorUnavailable) {
		return ErrUnavailable("text processor")
	}
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// HandleStream answers with server-sent events: one JSON object per data
// line, an {error} object on failure, and the [DONE] sentinel on success.
func (h *ProcessHandler) HandleStream(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var writeErr error
		err := h.chunker.Stream(ctx, req, func(ev types.StreamEvent) error {
			if writeErr = writeEvent(w, ev); writeErr != nil {
				return writeErr
			}
			return nil
		})

		switch {
		case writeErr != nil:
			h.logger.Warn("stream client went away", "error", writeErr)
		case err != nil:
			h.logger.Error("stream processing failed", "error", err)
			_ = writeEvent(w, types.ErrorEvent{Error: err.Error()})
		default:
			_ = writeData(w, []byte(types.DoneSentinel))
		}
	}))
	return nil
}

func (h *ProcessHandler) HandleChunk(c *fiber.Ctx) error {
	var req types.ChunkActionRequest
	if c.BodyParser(&req) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&req); len(errors) > 0 {
		return NewValidationError(errors)
	}

	chunk, err := h.chunker.ProcessChunk(c.UserContext(), req.Chunk, req.Action)
	if errors.Is(err, chunking.ErrProcessorUnavailable) {
		return ErrUnavailable("text processor")
	}
	if err != nil {
		return err
	}
	return c.JSON(chunk)
}

func writeEvent(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeData(w, data)
}

func writeData(w *bufio.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
