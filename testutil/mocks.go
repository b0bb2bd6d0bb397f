package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// MockGramServer creates a test server that mocks the mobile API endpoints
type MockGramServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	// LoginCalls counts hits on the login endpoint.
	LoginCalls atomic.Int64
}

// NewMockGramServer creates a new mock API server
func NewMockGramServer(t *testing.T) *MockGramServer {
	t.Helper()
	m := &MockGramServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts/login/" {
			m.LoginCalls.Add(1)
		}
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockLoginSuccess makes the login endpoint accept any credentials as userID/username.
func (m *MockGramServer) MockLoginSuccess(userID int64, username string) {
	m.Handlers["/accounts/login/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Ig-Set-Authorization", "Bearer IGT:2:test-token")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"status": "ok",
			"logged_in_user": map[string]interface{}{
				"pk":       userID,
				"username": username,
			},
		})
	}
}

// MockLoginFailure makes the login endpoint fail with the given API message.
func (m *MockGramServer) MockLoginFailure(status int, errorType, message string) {
	m.Handlers["/accounts/login/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck // test mock response
			"status":     "fail",
			"error_type": errorType,
			"message":    message,
		})
	}
}

// MockCurrentUser makes the liveness endpoint succeed.
func (m *MockGramServer) MockCurrentUser(username string) {
	m.Handlers["/accounts/current_user/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"status": "ok",
			"user":   map[string]string{"username": username},
		})
	}
}

// MockCurrentUserFailure makes the liveness endpoint fail.
func (m *MockGramServer) MockCurrentUserFailure(status int, message string) {
	m.Handlers["/accounts/current_user/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck // test mock response
			"status":  "fail",
			"message": message,
		})
	}
}

// MockMediaInfo serves a media info response for a shortcode lookup.
func (m *MockGramServer) MockMediaInfo(code string, body map[string]interface{}) {
	m.Handlers["/media/shortcode/"+code+"/info/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockUpload serves the given ack on an upload endpoint ("photo", "video" or "album").
func (m *MockGramServer) MockUpload(kind string, body map[string]interface{}) {
	m.Handlers["/media/upload/"+kind+"/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockAsset serves raw bytes at path, for download tests.
func (m *MockGramServer) MockAsset(path string, data []byte, contentType string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

// CountingObserver is a prometheus.Observer that counts its observations,
// for asserting that a code path records a duration.
type CountingObserver struct {
	mu    sync.Mutex
	count int
}

// Observe increments the observation count; the value itself is discarded.
func (o *CountingObserver) Observe(float64) {
	o.mu.Lock()
	o.count++
	o.mu.Unlock()
}

// Count returns how many observations have been recorded.
func (o *CountingObserver) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}
