package mcp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pdtx/mediagen-api/internal/notify"
	"github.com/pdtx/mediagen-api/internal/telemetry"
)

// StreamableTransport is the 2025-03-26+ single-endpoint transport. Per
// request it chooses between an immediate JSON reply and an SSE stream:
// streaming requires the client to accept text/event-stream AND the
// operation to be a long-running tool call. Quick operations are always
// pure JSON.
type StreamableTransport struct {
	gateway *Gateway
	hub     *notify.Hub
	logger  *slog.Logger
}

// NewStreamableTransport creates the streamable transport adapter.
func NewStreamableTransport(gateway *Gateway, hub *notify.Hub, logger *slog.Logger) *StreamableTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamableTransport{gateway: gateway, hub: hub, logger: logger}
}

// Handle serves POST /mcp.
func (t *StreamableTransport) Handle(w http.ResponseWriter, r *http.Request) {
	// The version marker gates everything: an unsupported version is
	// rejected before any parsing or business logic.
	version := r.Header.Get("MCP-Protocol-Version")
	if version == "" {
		version = VersionStreamable2503
	}
	if !IsStreamableVersion(version) {
		writeResponse(w, t.logger, NewErrorData(nil, CodeInvalidVersion,
			"Unsupported protocol version: "+version,
			map[string]any{"supported": StreamableVersions, "requested": version},
		))
		return
	}

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

	if t.shouldStream(r, req) {
		t.handleStreaming(w, r, req)
		return
	}

	resp := t.gateway.Handle(r.Context(), req)
	if resp == nil {
		writeResponse(w, t.logger, notificationAck())
		return
	}
	writeResponse(w, t.logger, resp)
}

// shouldStream applies the negotiation: only a tools/call of a
// long-running tool streams, and only when the client asked for an
// event stream.
func (t *StreamableTransport) shouldStream(r *http.Request, req *Request) bool {
	if req.Method != "tools/call" {
		return false
	}
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return false
	}
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return false
	}
	return IsStreamingTool(params.Name)
}

// handleStreaming runs the tool call, then serves its progress on the
// same connection: the first event is the JSON-RPC result, followed by
// ordered job events, and the server closes the stream at the terminal
// event.
func (t *StreamableTransport) handleStreaming(w http.ResponseWriter, r *http.Request, req *Request) {
	resp := t.gateway.Handle(r.Context(), req)

	// A failed call has no progress to stream; reply with plain JSON.
	jobID := extractJobID(resp)
	if resp == nil || resp.Error != nil || jobID == "" {
		if resp == nil {
			resp = notificationAck()
		}
		writeResponse(w, t.logger, resp)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	events, cancel := t.hub.SubscribeJob(jobID)
	defer cancel()

	telemetry.ActiveStreams.Inc()
	defer telemetry.ActiveStreams.Dec()
	t.logger.Info("streaming tool call", slog.String("job_id", jobID))

	if err := sse.send("message", resp); err != nil {
		return
	}

	// The job may have raced to terminal between the call and the
	// subscription; the re-read closes that window.
	snap, err := t.gateway.Status(r.Context(), jobID)
	if err == nil && snap.Status.IsTerminal() {
		_ = sse.send(notify.Event{Snapshot: snap}.Name(), newStreamEvent(notify.Event{Snapshot: snap}))
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
				if err := sse.send("ping", newPingEvent()); err != nil {
					return
				}
				continue
			}
			if err := sse.send(ev.Name(), newStreamEvent(ev)); err != nil {
				return
			}
			if ev.Status.IsTerminal() {
				// Server-initiated close on completion.
				return
			}
		}
	}
}

// extractJobID pulls the created job id out of a tool call result.
func extractJobID(resp *Response) string {
	if resp == nil || resp.Result == nil {
		return ""
	}
	result, ok := resp.Result.(ToolResult)
	if !ok {
		return ""
	}
	return result.JobID
}
