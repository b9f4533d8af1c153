package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/notify"
	"github.com/pdtx/mediagen-api/internal/telemetry"
)

// writeWait bounds how long a single WebSocket write may take.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEvent is the JSON frame sent on the WebSocket. Type mirrors the
// fan-out event names.
type wsEvent struct {
	Type string `json:"type"`
	job.Snapshot
}

// wsPing is the keep-alive frame. It carries no job fields so clients
// cannot mistake it for a job event.
type wsPing struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// WebSocketHandler serves GET /ws/jobs/{id}: one job per connection.
// The current snapshot is sent first, then every event for the job, and
// the server closes the connection after the terminal event. Connecting
// to an already-terminal job yields exactly one event before close.
type WebSocketHandler struct {
	service *job.Service
	hub     *notify.Hub
	logger  *slog.Logger
}

// NewWebSocketHandler creates the WebSocket job-watch handler.
func NewWebSocketHandler(service *job.Service, hub *notify.Hub, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{service: service, hub: hub, logger: logger}
}

// Handle upgrades the connection and streams the job's events.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	// Subscribe before the first read so no event between "read
	// snapshot" and "start listening" is lost.
	events, cancel := h.hub.SubscribeJob(jobID)
	defer cancel()

	snap, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		cancel()
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	telemetry.ActiveStreams.Inc()
	defer telemetry.ActiveStreams.Dec()
	h.logger.Info("websocket opened", slog.String("job_id", jobID))
	defer h.logger.Info("websocket closed", slog.String("job_id", jobID))

	// Reader goroutine: we never expect client frames, but reading is
	// what surfaces a disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(frame any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(frame)
	}

	// Current state first. For a terminal (or unknown) job this is the
	// only event.
	if err := send(wsEvent{Type: notify.Event{Snapshot: snap}.Name(), Snapshot: snap}); err != nil {
		return
	}
	if snap.Status.IsTerminal() || snap.Status == job.StatusNotFound {
		h.closeGracefully(conn)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				h.closeGracefully(conn)
				return
			}
			if ev.KeepAlive {
				if err := send(wsPing{Type: ev.Name(), Timestamp: time.Now().Unix()}); err != nil {
					return
				}
				continue
			}
			if err := send(wsEvent{Type: ev.Name(), Snapshot: ev.Snapshot}); err != nil {
				return
			}
			if ev.Status.IsTerminal() {
				h.closeGracefully(conn)
				return
			}
		}
	}
}

// closeGracefully sends a close frame so well-behaved clients see a
// clean shutdown rather than a dropped TCP connection.
func (h *WebSocketHandler) closeGracefully(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
		time.Now().Add(writeWait),
	)
}
