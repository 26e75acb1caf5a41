package gist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"koltracker/config"

	"go.uber.org/zap"
)

func TestNewClient(t *testing.T) {
	cfg := &config.Config{
		Gist: config.GistConfig{
			Token:  "test-token",
			GistID: "test-gist-id",
		},
	}

	client := NewClient(nil, cfg)

	if client.logger == nil {
		t.Error("expected logger to be set")
	}
	if client.token != "test-token" {
		t.Errorf("expected token 'test-token', got '%s'", client.token)
	}
	if client.gistID != "test-gist-id" {
		t.Errorf("expected gistID 'test-gist-id', got '%s'", client.gistID)
	}
}

func TestIsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected bool
	}{
		{"with token", "test-token", true},
		{"empty token", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Gist: config.GistConfig{Token: tt.token},
			}
			client := NewClient(nil, cfg)
			if client.IsEnabled() != tt.expected {
				t.Errorf("expected IsEnabled() = %v", tt.expected)
			}
		})
	}
}

func TestSave_Disabled(t *testing.T) {
	cfg := &config.Config{
		Gist: config.GistConfig{Token: ""},
	}
	client := NewClient(nil, cfg)

	err := client.Save(context.Background(), "trades.json", "content")
	if err == nil {
		t.Error("expected error when client is disabled")
	}
}

func TestSave_UpdateExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("missing or invalid authorization header")
		}
		if r.Header.Get("X-GitHub-Api-Version") != "2022-11-28" {
			t.Error("missing or invalid API version header")
		}

		var req gistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		if req.Public {
			t.Error("expected public to be false")
		}
		if file, ok := req.Files["trades.json"]; !ok || file.Content != "test content" {
			t.Error("unexpected file content")
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(Gist{ID: "existing-id"})
	}))
	defer server.Close()

	client := newTestClient("test-token", "existing-id", server.URL)

	err := client.Save(context.Background(), "trades.json", "test content")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSave_CreateNew(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Gist{ID: "new-gist-id"})
	}))
	defer server.Close()

	client := newTestClient("test-token", "", server.URL)

	err := client.Save(context.Background(), "trades.json", "test content")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if client.gistID != "new-gist-id" {
		t.Errorf("expected gistID to be updated to 'new-gist-id', got '%s'", client.gistID)
	}
}

func TestLoad_NoGistID(t *testing.T) {
	cfg := &config.Config{
		Gist: config.GistConfig{
			Token:  "test-token",
			GistID: "",
		},
	}
	client := NewClient(nil, cfg)

	_, err := client.Load(context.Background(), "trades.json")
	if err == nil {
		t.Error("expected error when no gist ID configured")
	}
}

func TestLoad_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}

		gist := Gist{
			ID: "test-gist-id",
			Files: map[string]GistFile{
				"trades.json": {Content: `{"key": "value"}`},
			},
		}
		json.NewEncoder(w).Encode(gist)
	}))
	defer server.Close()

	client := newTestClient("test-token", "test-gist-id", server.URL)

	content, err := client.Load(context.Background(), "trades.json")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if content != `{"key": "value"}` {
		t.Errorf("unexpected content: %s", content)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gist := Gist{
			ID:    "test-gist-id",
			Files: map[string]GistFile{},
		}
		json.NewEncoder(w).Encode(gist)
	}))
	defer server.Close()

	client := newTestClient("test-token", "test-gist-id", server.URL)

	_, err := client.Load(context.Background(), "nonexistent.json")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_GistNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient("test-token", "nonexistent-id", server.URL)

	_, err := client.Load(context.Background(), "trades.json")
	if err == nil {
		t.Error("expected error for nonexistent gist")
	}
}

func TestSaveJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gistRequest
		json.NewDecoder(r.Body).Decode(&req)

		file := req.Files["kols.json"]
		var data map[string]string
		if err := json.Unmarshal([]byte(file.Content), &data); err != nil {
			t.Errorf("failed to parse JSON content: %v", err)
		}
		if data["key"] != "value" {
			t.Errorf("unexpected JSON data: %v", data)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(Gist{ID: "test-id"})
	}))
	defer server.Close()

	client := newTestClient("test-token", "test-id", server.URL)

	err := client.SaveJSON(context.Background(), "kols.json", map[string]string{"key": "value"})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gist := Gist{
			ID: "test-id",
			Files: map[string]GistFile{
				"kols.json": {Content: `{"name": "test", "count": 42}`},
			},
		}
		json.NewEncoder(w).Encode(gist)
	}))
	defer server.Close()

	client := newTestClient("test-token", "test-id", server.URL)

	var dest struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	err := client.LoadJSON(context.Background(), "kols.json", &dest)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if dest.Name != "test" || dest.Count != 42 {
		t.Errorf("unexpected data: %+v", dest)
	}
}

func TestLoadJSON_UnmarshalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gist := Gist{
			ID: "test-id",
			Files: map[string]GistFile{
				"trades.json": {Content: `not valid json`},
			},
		}
		json.NewEncoder(w).Encode(gist)
	}))
	defer server.Close()

	client := newTestClient("test-token", "test-id", server.URL)

	var dest map[string]string
	err := client.LoadJSON(context.Background(), "trades.json", &dest)
	if err == nil {
		t.Error("expected error for invalid JSON content")
	}
}

func TestSave_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
	}))
	defer server.Close()

	client := newTestClient("test-token", "test-id", server.URL)

	err := client.Save(context.Background(), "trades.json", "content")
	if err == nil {
		t.Error("expected error on API error")
	}
}

func TestSaveJSON_MarshalError(t *testing.T) {
	client := &Client{
		logger: zap.NewNop(),
		token:  "test-token",
		gistID: "test-id",
	}

	// Channel cannot be marshaled to JSON
	err := client.SaveJSON(context.Background(), "trades.json", make(chan int))
	if err == nil {
		t.Error("expected error for unmarshalable data")
	}
}

// testTransport rewrites requests to go to the test server
type testTransport struct {
	baseURL   string
	transport http.RoundTripper
}

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.baseURL[7:] // Strip "http://"

	if t.transport == nil {
		t.transport = http.DefaultTransport
	}
	return t.transport.RoundTrip(req)
}

func newTestClient(token, gistID, serverURL string) *Client {
	return &Client{
		logger: zap.NewNop(),
		httpClient: &http.Client{
			Transport: &testTransport{
				baseURL:   serverURL,
				transport: http.DefaultTransport,
			},
		},
		token:  token,
		gistID: gistID,
	}
}
