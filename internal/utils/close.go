package utils

import (
	"io"

	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

// DrainClose reads rc to EOF and closes it so the HTTP connection can be reused.
// Use for response bodies whose content is not needed.
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}

// MustClose closes c and logs any error under what.
// Use during shutdown where the error is only worth reporting.
func MustClose(c io.Closer, what string, log logger.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("resource", what), logger.Error(err))
		return
	}
	log.Info("✅ closed cleanly", logger.String("resource", what))
}
