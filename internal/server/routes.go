package server

import (
	"log/slog"
	"net/http"

	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/mcp"
	"github.com/pdtx/mediagen-api/internal/notify"
	"github.com/pdtx/mediagen-api/internal/telemetry"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates the HTTP router with all routes configured: the job
// API, the WebSocket endpoint, both MCP transports, and metrics. It
// uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(service *job.Service, hub *notify.Hub, gateway *mcp.Gateway, logger *slog.Logger, cfg Config) http.Handler {
	h := NewHandlers(service, logger)
	ws := NewWebSocketHandler(service, hub, logger)
	legacy := mcp.NewLegacyTransport(gateway, hub, logger)
	streamable := mcp.NewStreamableTransport(gateway, hub, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /jobs/{id}/wait", h.WaitJob)
	mux.HandleFunc("GET /ws/jobs/{id}", ws.Handle)

	mux.HandleFunc("POST /mcp", streamable.Handle)
	mux.HandleFunc("POST /mcp-rpc", legacy.HandleRPC)
	mux.HandleFunc("GET /mcp-sse/{client_id}", legacy.HandleEvents)
	mux.HandleFunc("GET /mcp-info", mcp.InfoHandler())

	mux.Handle("GET /metrics", telemetry.Handler())

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
