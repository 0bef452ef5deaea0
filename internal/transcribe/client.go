package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/reliability"
)

// Result is the body of a successful /stream-transcribe response.
type Result struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Client sends recordings to a MockWise server's /stream-transcribe endpoint.
type Client struct {
	endpoint    string
	contentType string
	http        *http.Client
}

func NewClient(serverURL, contentType string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	return &Client{
		endpoint:    strings.TrimRight(serverURL, "/") + "/stream-transcribe",
		contentType: contentType,
		http:        httpClient,
	}
}

func (c *Client) Name() string { return "http" }

func (c *Client) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, audio)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", c.contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Upstream("Transcription failed", 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.Upstream("Transcription failed", resp.StatusCode, "", err)
	}
	if !reliability.IsSuccessStatus(resp.StatusCode) {
		var body errorBody
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			detail = body.Error
			if body.Details != "" {
				detail += ": " + body.Details
			}
		}
		return "", apperr.Upstream("Transcription failed", resp.StatusCode, detail, nil)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", apperr.Upstream("Transcription failed", resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
	}
	if !result.Success {
		return "", apperr.Upstream("Transcription failed", resp.StatusCode, "server reported failure", nil)
	}
	return result.Text, nil
}
