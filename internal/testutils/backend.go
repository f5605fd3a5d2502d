package testutils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"asasense/internal/api"
)

// FakeBackend is an httptest server speaking the agent API. Configure the
// exported fields before issuing requests.
type FakeBackend struct {
	*httptest.Server

	mu       sync.Mutex
	healthy  bool
	contexts map[string]string
	reply    func(req api.RunRequest) (int, string)
	requests []api.RunRequest
}

// NewFakeBackend starts a healthy backend whose run endpoint echoes the
// message back as the reply content. It is closed when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	f := &FakeBackend{
		healthy:  true,
		contexts: map[string]string{},
		reply:    EchoReply,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.HealthPath, f.handleHealth)
	mux.HandleFunc("GET /users/{id}/context", f.handleContext)
	mux.HandleFunc("POST "+api.RunsPath, f.handleRun)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// EchoReply answers with "echo: <message>" in output.parts[0].content.
func EchoReply(req api.RunRequest) (int, string) {
	text := ""
	if len(req.Input) > 0 && len(req.Input[0].Parts) > 0 {
		text = req.Input[0].Parts[0].Content
	}
	body, _ := json.Marshal(map[string]any{
		"output": map[string]any{
			"parts": []map[string]string{{"content": "echo: " + text}},
		},
	})
	return http.StatusOK, string(body)
}

// SetHealthy controls the /health status.
func (f *FakeBackend) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

// SetContext registers the context blob returned for userID.
func (f *FakeBackend) SetContext(userID, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts[userID] = body
}

// SetReply replaces the run endpoint handler.
func (f *FakeBackend) SetReply(fn func(req api.RunRequest) (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = fn
}

// Requests returns the run requests received so far.
func (f *FakeBackend) Requests() []api.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.RunRequest(nil), f.requests...)
}

func (f *FakeBackend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	healthy := f.healthy
	f.mu.Unlock()

	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}

func (f *FakeBackend) handleContext(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	body, ok := f.contexts[r.PathValue("id")]
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"detail":"user not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *FakeBackend) handleRun(w http.ResponseWriter, r *http.Request) {
	var req api.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply := f.reply
	f.mu.Unlock()

	status, body := reply(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
