package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"koltracker/config"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	apiBaseURL = "https://api.github.com"
)

// Storage is the interface for the key-value persistence collaborator.
// The rest of the system only needs load/save blob semantics, so tests
// swap in an in-memory implementation.
type Storage interface {
	IsEnabled() bool
	Load(ctx context.Context, filename string) (string, error)
	Save(ctx context.Context, filename, content string) error
	LoadJSON(ctx context.Context, filename string, dest any) error
	SaveJSON(ctx context.Context, filename string, data any) error
}

// Ensure Client implements Storage interface
var _ Storage = (*Client)(nil)

// Client persists data files in a GitHub Gist.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	token      string
	gistID     string // If set, updates this gist; otherwise creates one on first save
}

// GistFile represents a file in a gist.
type GistFile struct {
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content"`
}

// Gist represents a GitHub gist.
type Gist struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type gistRequest struct {
	Description string              `json:"description,omitempty"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
}

// NewClient creates a new GitHub Gist client.
func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.Gist.Token
	if token == "" {
		logger.Warn("GITHUB_TOKEN not set, gist persistence will be disabled")
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		token:  token,
		gistID: cfg.Gist.GistID,
	}
}

// IsEnabled returns true if the client has a valid token.
func (c *Client) IsEnabled() bool {
	return c.token != ""
}

// SaveJSON saves JSON data to a gist file.
func (c *Client) SaveJSON(ctx context.Context, filename string, data any) error {
	if !c.IsEnabled() {
		return fmt.Errorf("gist client not configured")
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	return c.Save(ctx, filename, string(jsonData))
}

// Save saves content to a gist file.
func (c *Client) Save(ctx context.Context, filename, content string) error {
	if !c.IsEnabled() {
		return fmt.Errorf("gist client not configured")
	}

	reqBody := gistRequest{
		Description: "koltracker data",
		Public:      false,
		Files: map[string]GistFile{
			filename: {Content: content},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var url string
	var method string
	if c.gistID != "" {
		url = fmt.Sprintf("%s/gists/%s", apiBaseURL, c.gistID)
		method = http.MethodPatch
	} else {
		url = fmt.Sprintf("%s/gists", apiBaseURL)
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error status=%d body=%s", resp.StatusCode, string(body))
	}

	// If we created a new gist, save its ID for future updates
	if c.gistID == "" {
		var g Gist
		if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		c.gistID = g.ID
		c.logger.Info("created new gist", zap.String("id", g.ID))
	}

	c.logger.Debug("saved to gist",
		zap.String("filename", filename),
		zap.Int("bytes", len(content)),
	)

	return nil
}

// LoadJSON loads JSON data from a gist file.
func (c *Client) LoadJSON(ctx context.Context, filename string, dest any) error {
	if !c.IsEnabled() {
		return fmt.Errorf("gist client not configured")
	}

	content, err := c.Load(ctx, filename)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(content), dest); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	return nil
}

// Load loads content from a gist file.
func (c *Client) Load(ctx context.Context, filename string) (string, error) {
	if !c.IsEnabled() {
		return "", fmt.Errorf("gist client not configured")
	}

	if c.gistID == "" {
		return "", fmt.Errorf("no gist ID configured")
	}

	url := fmt.Sprintf("%s/gists/%s", apiBaseURL, c.gistID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("gist not found")
	}

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("api error status=%d body=%s", resp.StatusCode, string(body))
	}

	var g Gist
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	file, ok := g.Files[filename]
	if !ok {
		return "", fmt.Errorf("file %q not found in gist", filename)
	}

	c.logger.Debug("loaded from gist",
		zap.String("filename", filename),
		zap.Int("bytes", len(file.Content)),
	)

	return file.Content, nil
}
