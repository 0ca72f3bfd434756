package api

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"chunker/extract"
	"chunker/types"
)

type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

type FileHandler struct {
	extractor Extractor
}

func NewFileHandler(e Extractor) *FileHandler {
	return &FileHandler{
		extractor: e,
	}
}

func (h *FileHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewError(fiber.StatusBadRequest, "missing file")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	content, err := h.extractor.Extract(c.UserContext(), fileHeader.Filename, data)
	switch {
	case errors.Is(err, extract.ErrUnsupportedFile),
		errors.Is(err, extract.ErrNotUTF8),
		errors.Is(err, extract.ErrInvalidDocument):
		return ErrUnprocessable(err)
	case errors.Is(err, extract.ErrVisionUnavailable):
		return ErrUnavailable("vision model")
	case err != nil:
		return err
	}

	return c.JSON(types.FileContent{Content: content})
}
