package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mcoot/chaosroom/internal/api/apierr"
	"github.com/mcoot/chaosroom/internal/middleware"
)

// Recovery creates panic recovery middleware for the API
// Returns JSON error responses on panic
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, apiPanicHandler)
}

// Logging logs every API request with its correlation id
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Logging(logger.With(slog.String("component", "api")))
}

func apiPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	apierr.WriteError(w, apierr.NewInternalError())
}

// RequestID returns the correlation id assigned by the logging middleware
func RequestID(ctx context.Context) string {
	return middleware.RequestID(ctx)
}
