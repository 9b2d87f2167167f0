// Package mocks provides an OpenAI-compatible mock provider used in E2E tests.
package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockProvider emulates an OpenAI-compatible inference endpoint with
// configurable responses, error injection and request capture.
type MockProvider struct {
	mu     sync.RWMutex
	server *httptest.Server

	// Response configuration
	completion ChatCompletionResponse
	models     ModelList
	status     int

	// Error injection
	failWith *ErrorDetail

	// Expected credential; requests with any other bearer get a 401.
	apiKey string

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records an incoming request for test assertions.
type RequestLog struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// NewMockProvider starts a mock provider accepting the given API key.
func NewMockProvider(apiKey string) *MockProvider {
	m := NewMockProviderHandler(apiKey)
	m.server = httptest.NewServer(m)
	return m
}

// NewMockProviderHandler builds a provider without binding it to a listener,
// for embedding in a server of the caller's choosing.
func NewMockProviderHandler(apiKey string) *MockProvider {
	m := &MockProvider{apiKey: apiKey, status: http.StatusOK}
	m.setDefaults()
	return m
}

// URL returns the mock provider's base URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock provider's listener, if it has one.
func (m *MockProvider) Close() {
	if m.server != nil {
		m.server.Close()
	}
}

// ServeHTTP routes requests to the appropriate mock handler.
func (m *MockProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	apiKey := m.apiKey
	failWith := m.failWith
	m.mu.Unlock()

	if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
		writeProviderError(w, http.StatusUnauthorized, ErrorDetail{
			Message: "Incorrect API key provided",
			Type:    "invalid_request_error",
			Code:    "invalid_api_key",
		})
		return
	}

	if failWith != nil {
		writeProviderError(w, http.StatusInternalServerError, *failWith)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		m.handleChatCompletion(w, body)
	case strings.HasSuffix(r.URL.Path, "/models"):
		m.handleModels(w)
	default:
		writeProviderError(w, http.StatusNotFound, ErrorDetail{
			Message: fmt.Sprintf("Unknown request URL: %s %s", r.Method, r.URL.Path),
			Type:    "invalid_request_error",
		})
	}
}

func (m *MockProvider) handleChatCompletion(w http.ResponseWriter, body []byte) {
	var req ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeProviderError(w, http.StatusBadRequest, ErrorDetail{
			Message: "We could not parse the JSON body of your request.",
			Type:    "invalid_request_error",
		})
		return
	}

	m.mu.RLock()
	resp := m.completion
	status := m.status
	m.mu.RUnlock()

	// Echo the model the caller asked for, the way real providers do.
	resp.Model = req.Model

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (m *MockProvider) handleModels(w http.ResponseWriter) {
	m.mu.RLock()
	models := m.models
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models)
}

// SetCompletion configures the canned completion response.
func (m *MockProvider) SetCompletion(resp ChatCompletionResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completion = resp
}

// SetStatus configures the status code for completion responses.
func (m *MockProvider) SetStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// SetError makes every authenticated request fail with the given detail.
func (m *MockProvider) SetError(detail *ErrorDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = detail
}

// GetRequestLog returns all captured requests.
func (m *MockProvider) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// LastRequest returns the most recent captured request, or nil.
func (m *MockProvider) LastRequest() *RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requestLog) == 0 {
		return nil
	}
	last := m.requestLog[len(m.requestLog)-1]
	return &last
}

// ClearRequestLog discards captured requests.
func (m *MockProvider) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = nil
}

func (m *MockProvider) setDefaults() {
	m.completion = ChatCompletionResponse{
		ID:     "chatcmpl-mock-1",
		Object: "chat.completion",
		Choices: []CompletionChoice{{
			Message:      ChatMessage{Role: "assistant", Content: "Hello from the mock provider."},
			FinishReason: "stop",
		}},
		Usage: CompletionUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
	}
	m.models = ModelList{
		Object: "list",
		Data: []ModelInfo{
			{ID: "gpt-4", Object: "model", OwnedBy: "mock"},
			{ID: "gpt-4o-mini", Object: "model", OwnedBy: "mock"},
		},
	}
}

func writeProviderError(w http.ResponseWriter, status int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: detail})
}
