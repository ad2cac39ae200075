package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockAIServer creates a test server that mocks an OpenAI-compatible API
// (OpenAI itself, or Ollama's /v1 surface).
type MockAIServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []RecordedRequest
}

// RecordedRequest is one request seen by the mock, with its decoded JSON body.
type RecordedRequest struct {
	Path string
	Auth string
	Body map[string]interface{}
}

// NewMockAIServer creates a new mock AI API server. Unknown paths return 404.
func NewMockAIServer(t *testing.T) *MockAIServer {
	t.Helper()
	m := &MockAIServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body) //nolint:errcheck // test mock request
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body) //nolint:errcheck // body may be empty
		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body})
		m.mu.Unlock()

		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Requests returns a copy of every request received so far.
func (m *MockAIServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// MockModerationResponse adds a handler for /v1/moderations returning one result.
// categories and scores are keyed by the API category names (e.g. "hate/threatening").
func (m *MockAIServer) MockModerationResponse(flagged bool, categories map[string]bool, scores map[string]float64) {
	m.Handlers["/v1/moderations"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"id":    "modr-test",
			"model": "omni-moderation-latest",
			"results": []map[string]interface{}{
				{"flagged": flagged, "categories": categories, "category_scores": scores},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockChatResponse adds a handler for /v1/chat/completions returning content.
func (m *MockAIServer) MockChatResponse(content string) {
	m.Handlers["/v1/chat/completions"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "test",
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockError makes path answer with an OpenAI-style error body and status.
func (m *MockAIServer) MockError(path string, status int, message string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"error": map[string]interface{}{"message": message, "type": "invalid_request_error"},
		})
	}
}
