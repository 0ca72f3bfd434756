package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger logs every request after the handler ran. Paths starting
// with one of skip are not logged.
func RequestLogger(logger *slog.Logger, skip ...string) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, prefix := range skip {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if ferr, ok := err.(*fiber.Error); ok {
				status = ferr.Code
			}
		}
		logger.Info("request",
			"method", c.Method(),
			"path", path,
			"status", status,
			"took", time.Since(start),
		)
		return err
	}
}
