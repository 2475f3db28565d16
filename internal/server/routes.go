package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins. "*" allows any.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values. No origin is allowed,
// so browsers on other sites cannot read responses.
func DefaultConfig() Config {
	return Config{}
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /conversions", h.CreateConversion)
	mux.HandleFunc("GET /conversions", h.ListConversions)
	mux.HandleFunc("GET /conversions/{id}", h.GetConversion)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
