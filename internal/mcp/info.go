package mcp

import (
	"encoding/json"
	"net/http"
)

// InfoHandler serves GET /mcp-info: a discovery document describing the
// available transports so clients can pick an endpoint before speaking
// JSON-RPC.
func InfoHandler() http.HandlerFunc {
	doc := map[string]any{
		"protocol":     "Model Context Protocol",
		"server":       ServerName,
		"version":      ServerVersion,
		"capabilities": serverCapabilities(),
		"transports": map[string]any{
			"legacy": map[string]any{
				"protocol_versions": []string{VersionLegacy},
				"rpc_endpoint":      "/mcp-rpc",
				"events_endpoint":   "/mcp-sse/{client_id}",
			},
			"streamable_http": map[string]any{
				"protocol_versions": StreamableVersions,
				"endpoint":          "/mcp",
			},
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(doc)
	}
}
