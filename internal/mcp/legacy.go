package mcp

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pdtx/mediagen-api/internal/notify"
	"github.com/pdtx/mediagen-api/internal/telemetry"
)

// LegacyTransport is the 2024-11-05 dual-endpoint transport: JSON-RPC
// over POST plus a persistent per-client event stream that multiplexes
// all of that client's jobs.
type LegacyTransport struct {
	gateway *Gateway
	hub     *notify.Hub
	logger  *slog.Logger
}

// NewLegacyTransport creates the legacy transport adapter.
func NewLegacyTransport(gateway *Gateway, hub *notify.Hub, logger *slog.Logger) *LegacyTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyTransport{gateway: gateway, hub: hub, logger: logger}
}

// HandleRPC serves POST /mcp-rpc: one JSON-RPC request, one immediate
// JSON reply. Progress is never streamed here; clients watch the event
// stream instead.
func (t *LegacyTransport) HandleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		writeResponse(w, t.logger, NewError(nil, CodeInvalidRequest, "Empty request body"))
		return
	}

	req, errResp := ParseRequest(body)
	if errResp != nil {
		writeResponse(w, t.logger, errResp)
		return
	}

	resp := t.gateway.Handle(r.Context(), req)
	if resp == nil {
		writeResponse(w, t.logger, notificationAck())
		return
	}
	writeResponse(w, t.logger, resp)
}

// HandleEvents serves GET /mcp-sse/{client_id}: a persistent SSE stream
// carrying events for every job submitted with that client id, plus
// keep-alives. The stream lives until the client disconnects.
func (t *LegacyTransport) HandleEvents(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	// Subscribe before the first byte goes out, so a client that
	// submits right after the headers arrive cannot lose events.
	events, cancel := t.hub.SubscribeClient(clientID)
	defer cancel()

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	telemetry.ActiveStreams.Inc()
	defer telemetry.ActiveStreams.Dec()
	t.logger.Info("legacy event stream opened", slog.String("client_id", clientID))
	defer t.logger.Info("legacy event stream closed", slog.String("client_id", clientID))

	if err := sse.send("connected", map[string]any{
		"type":      "connection_established",
		"client_id": clientID,
		"timestamp": time.Now().Unix(),
	}); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.KeepAlive {
				if err := sse.send("keep-alive", newPingEvent()); err != nil {
					return
				}
				continue
			}
			if err := sse.send(ev.Name(), newStreamEvent(ev)); err != nil {
				return
			}
		}
	}
}
