package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/notify"
)

// streamEvent is the SSE data payload for job events on both
// transports. Type mirrors the event name so clients that ignore SSE
// event names can still classify messages.
type streamEvent struct {
	Type string `json:"type"`
	job.Snapshot
	Timestamp int64 `json:"timestamp"`
}

func newStreamEvent(ev notify.Event) streamEvent {
	return streamEvent{
		Type:      ev.Name(),
		Snapshot:  ev.Snapshot,
		Timestamp: time.Now().Unix(),
	}
}

// pingEvent is the keep-alive payload.
type pingEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func newPingEvent() pingEvent {
	return pingEvent{Type: "ping", Timestamp: time.Now().Unix()}
}

// writeResponse serializes a JSON-RPC response onto an HTTP response.
func writeResponse(w http.ResponseWriter, logger *slog.Logger, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode json-rpc response", slog.String("error", err.Error()))
	}
}

// notificationAck is sent for JSON-RPC notifications, which carry no id
// and expect no result.
func notificationAck() *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: nil}
}

// sseWriter emits Server-Sent Events and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for event streaming. Returns an
// error if the underlying writer cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// send writes one named event with a JSON data payload.
func (s *sseWriter) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
