// Package api is the REST client for the overlay server's HTTP surface:
// token issuance, the read-only lookup side-channel, audio chunk upload,
// and the merge trigger.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 30 * time.Second

// Client talks to one overlay server base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient creates a client for the given base URL. The URL is
// normalized: a missing scheme defaults to http:// and any trailing slash
// is stripped.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    NormalizeBaseURL(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logrus.WithField("component", "APIClient"),
	}
}

// NormalizeBaseURL applies the scheme default and trailing-slash strip
// used everywhere a server address is configured.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "http://localhost:5000"
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return strings.TrimRight(base, "/")
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SocketURL derives the WebSocket endpoint from the base URL.
func (c *Client) SocketURL() string {
	ws := strings.Replace(c.baseURL, "http", "ws", 1)
	return ws + "/socket"
}

// SetHTTPClient replaces the underlying HTTP client, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// FetchToken requests a fresh opaque auth token for a username.
func (c *Client) FetchToken(ctx context.Context, username string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": username})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("token endpoint returned no token")
	}

	c.logger.WithField("token_prefix", prefix(parsed.Token, 12)).Info("Token fetched")
	return parsed.Token, nil
}

// LookupResult is the response of the read-only search endpoint.
type LookupResult struct {
	Rows        []any `json:"rows"`
	Unavailable bool  `json:"db_lookup_unavailable"`
}

// Lookup resolves a >find query against the server-side search endpoint.
func (c *Client) Lookup(ctx context.Context, query string) (*LookupResult, error) {
	endpoint := c.baseURL + "/lookup?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("lookup endpoint returned %s", resp.Status)
	}

	var result LookupResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"query":       query,
		"rows":        len(result.Rows),
		"unavailable": result.Unavailable,
	}).Debug("Lookup completed")

	return &result, nil
}

// UploadError reports a non-2xx chunk upload with the response detail the
// worker records for the per-chunk ledger.
type UploadError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload returned %s: %s", e.Status, e.Body)
}

// UploadChunk delivers one audio segment as a multipart form.
func (c *Client) UploadChunk(ctx context.Context, token, sessionID string, seq int, data []byte, mimeType string) error {
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)

	if err := writer.WriteField("session_id", sessionID); err != nil {
		return fmt.Errorf("write session_id field: %w", err)
	}
	part, err := writer.CreateFormFile("audio", fmt.Sprintf("chunk-%d.webm", time.Now().UnixMilli()))
	if err != nil {
		return fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_audio_chunk", &form)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload chunk %d: %w", seq, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UploadError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(detail)),
		}
	}

	c.logger.WithFields(logrus.Fields{
		"seq":        seq,
		"session_id": sessionID,
		"bytes":      len(data),
		"mime_type":  mimeType,
	}).Debug("Chunk uploaded")

	return nil
}

// MergeAudio asks the server to concatenate all uploaded segments for a
// session into one artifact. Returns the server's message on success.
func (c *Client) MergeAudio(ctx context.Context, token, username string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": username})
	if err != nil {
		return "", fmt.Errorf("encode merge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/merge_audio", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build merge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("merge audio: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return "", fmt.Errorf("decode merge response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if parsed.Error != "" {
			return "", fmt.Errorf("merge failed: %s", parsed.Error)
		}
		return "", fmt.Errorf("merge endpoint returned %s", resp.Status)
	}

	c.logger.WithField("username", username).Info("Merge requested")
	return parsed.Message, nil
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
