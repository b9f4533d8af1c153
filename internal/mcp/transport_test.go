package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdtx/mediagen-api/internal/credentials"
	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/notify"
)

// hubPublisher short-circuits the Redis relay for in-process tests.
type hubPublisher struct {
	hub *notify.Hub
}

func (p hubPublisher) Publish(_ context.Context, snap job.Snapshot) error {
	p.hub.Publish(notify.Event{Snapshot: snap})
	return nil
}

type transportFixture struct {
	svc    *job.Service
	hub    *notify.Hub
	server *httptest.Server
}

func newTransportFixture(t *testing.T) *transportFixture {
	t.Helper()
	hub := notify.NewHub(time.Minute)
	resolver := credentials.NewResolver(credentials.Defaults{
		GeminiAPIKey:       "AIzaSy-test-key-0123456789",
		GoogleCloudProject: "demo-project",
		GCSBucket:          "demo-bucket",
		ElevenLabsAPIKey:   "el-test-key-0123456789abc",
	})
	svc := job.NewService(job.NewMemoryRepository(), slog.Default(),
		job.WithResolver(resolver),
		job.WithPublisher(hubPublisher{hub: hub}),
	)

	gateway := NewGateway(svc, slog.Default())
	initialize(t, gateway, VersionStreamable2506)
	legacy := NewLegacyTransport(gateway, hub, slog.Default())
	streamable := NewStreamableTransport(gateway, hub, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", streamable.Handle)
	mux.HandleFunc("POST /mcp-rpc", legacy.HandleRPC)
	mux.HandleFunc("GET /mcp-sse/{client_id}", legacy.HandleEvents)
	mux.HandleFunc("GET /mcp-info", InfoHandler())

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &transportFixture{svc: svc, hub: hub, server: server}
}

func rpcBody(t *testing.T, id any, method string, params any) []byte {
	t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func postJSON(t *testing.T, url string, body []byte, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

type sseMessage struct {
	Event string
	Data  string
}

// readSSE parses events off the stream until stop returns true or the
// server closes the connection.
func readSSE(t *testing.T, body io.Reader, stop func(sseMessage) bool) []sseMessage {
	t.Helper()
	var messages []sseMessage
	var current sseMessage
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.Event != "" || current.Data != "" {
				messages = append(messages, current)
				if stop != nil && stop(current) {
					return messages
				}
				current = sseMessage{}
			}
		}
	}
	return messages
}

// driveJobToCompletion waits for the submitted job to appear, then
// plays the executor's part.
func (f *transportFixture) driveJobToCompletion(t *testing.T, jobID string, result job.Result) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Start(ctx, jobID)
	require.NoError(t, err)
	_, err = f.svc.ReportProgress(ctx, jobID, 60, 2, "Working")
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, jobID, result)
	require.NoError(t, err)
}

func TestStreamableUnsupportedVersionCreatesNoJob(t *testing.T) {
	f := newTransportFixture(t)

	body := rpcBody(t, 1, "tools/call", map[string]any{
		"name":      "generate_video",
		"arguments": map[string]any{"prompt": "a lighthouse"},
	})
	_, decoded := postJSON(t, f.server.URL+"/mcp", body, map[string]string{
		"MCP-Protocol-Version": "2024-11-05",
		"Accept":               "text/event-stream",
	})

	errObj := decoded["error"].(map[string]any)
	assert.EqualValues(t, CodeInvalidVersion, errObj["code"])
	data := errObj["data"].(map[string]any)
	assert.Equal(t, "2024-11-05", data["requested"])

	jobs, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs, "rejected version must not create a job")
}

func TestStreamableQuickToolNeverStreams(t *testing.T) {
	f := newTransportFixture(t)

	body := rpcBody(t, 2, "tools/call", map[string]any{
		"name":      "check_job_status",
		"arguments": map[string]any{"job_id": "nope"},
	})
	resp, decoded := postJSON(t, f.server.URL+"/mcp", body, map[string]string{
		"MCP-Protocol-Version": VersionStreamable2506,
		"Accept":               "text/event-stream",
	})

	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	errObj := decoded["error"].(map[string]any)
	assert.EqualValues(t, CodeResourceNotFound, errObj["code"])
}

func TestStreamableJSONModeReturnsJobID(t *testing.T) {
	f := newTransportFixture(t)

	body := rpcBody(t, 3, "tools/call", map[string]any{
		"name":      "generate_audio",
		"arguments": map[string]any{"prompt": "a podcast"},
	})
	resp, decoded := postJSON(t, f.server.URL+"/mcp", body, map[string]string{
		"MCP-Protocol-Version": VersionStreamable2503,
	})

	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	result := decoded["result"].(map[string]any)
	assert.NotEmpty(t, result["job_id"])
}

func TestStreamableStreamingToolCall(t *testing.T) {
	f := newTransportFixture(t)

	body := rpcBody(t, 4, "tools/call", map[string]any{
		"name":      "generate_audio",
		"arguments": map[string]any{"prompt": "a podcast about tide pools"},
	})
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/mcp", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("MCP-Protocol-Version", VersionStreamable2506)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// Play the executor once the job shows up.
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			jobs, err := f.svc.List(context.Background())
			if err == nil && len(jobs) == 1 {
				f.driveJobToCompletion(t, jobs[0].JobID, job.Result{
					DownloadURL: "https://example.com/a.mp3",
					Format:      "mp3",
				})
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	// The server closes the stream after the terminal event, so reading
	// to the end terminates.
	messages := readSSE(t, resp.Body, nil)
	require.NotEmpty(t, messages)

	// First event is the JSON-RPC result carrying the job id.
	first := messages[0]
	assert.Equal(t, "message", first.Event)
	var rpcResp struct {
		JSONRPC string `json:"jsonrpc"`
		Result  struct {
			JobID string `json:"job_id"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(first.Data), &rpcResp))
	assert.Equal(t, "2.0", rpcResp.JSONRPC)
	require.NotEmpty(t, rpcResp.Result.JobID)

	// Progress events are ordered and the stream ends with the terminal
	// event.
	last := messages[len(messages)-1]
	assert.Equal(t, "job_complete", last.Event)
	lastProgress := -1
	for _, m := range messages[1:] {
		var ev struct {
			JobID    string `json:"job_id"`
			Progress int    `json:"progress"`
		}
		require.NoError(t, json.Unmarshal([]byte(m.Data), &ev))
		assert.Equal(t, rpcResp.Result.JobID, ev.JobID)
		assert.GreaterOrEqual(t, ev.Progress, lastProgress)
		lastProgress = ev.Progress
	}
}

func TestLegacyRPCRoundtrip(t *testing.T) {
	f := newTransportFixture(t)

	_, decoded := postJSON(t, f.server.URL+"/mcp-rpc", rpcBody(t, 5, "ping", nil), nil)
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.NotContains(t, decoded, "error")

	_, decoded = postJSON(t, f.server.URL+"/mcp-rpc", []byte("{broken"), nil)
	errObj := decoded["error"].(map[string]any)
	assert.EqualValues(t, CodeParseError, errObj["code"])
}

func TestLegacyEventStreamMultiplexesClientJobs(t *testing.T) {
	f := newTransportFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/mcp-sse/c1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// Two jobs for the same client, driven to terminal concurrently
	// with the open stream.
	var jobIDs []string
	for i := 0; i < 2; i++ {
		body := rpcBody(t, i, "tools/call", map[string]any{
			"name": "generate_video",
			"arguments": map[string]any{
				"prompt":    fmt.Sprintf("video %d", i),
				"client_id": "c1",
			},
		})
		_, decoded := postJSON(t, f.server.URL+"/mcp-rpc", body, nil)
		result := decoded["result"].(map[string]any)
		jobIDs = append(jobIDs, result["job_id"].(string))
	}
	for _, id := range jobIDs {
		f.driveJobToCompletion(t, id, job.Result{DownloadURL: "https://example.com/v.mp4"})
	}

	completions := map[string]bool{}
	messages := readSSE(t, resp.Body, func(m sseMessage) bool {
		if m.Event == "job_complete" {
			var ev struct {
				JobID string `json:"job_id"`
			}
			if json.Unmarshal([]byte(m.Data), &ev) == nil {
				completions[ev.JobID] = true
			}
		}
		return len(completions) == 2
	})

	require.NotEmpty(t, messages)
	assert.Equal(t, "connected", messages[0].Event)
	for _, id := range jobIDs {
		assert.True(t, completions[id], "missing completion for %s", id)
	}
}

func TestMCPInfo(t *testing.T) {
	f := newTransportFixture(t)

	resp, err := http.Get(f.server.URL + "/mcp-info")
	require.NoError(t, err)
	defer resp.Body.Close()

	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, ServerName, info["server"])
	transports := info["transports"].(map[string]any)
	assert.Contains(t, transports, "legacy")
	assert.Contains(t, transports, "streamable_http")
}
