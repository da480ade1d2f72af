// Package sandbox runs generated code in a remote code interpreter.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when no sandbox API key is configured.
var ErrUnavailable = errors.New("code interpreter not available: set E2B_API_KEY")

// ErrEmptyCode is returned for blank submissions.
var ErrEmptyCode = errors.New("code is empty")

// Result is the outcome of one execution. A program that raised is a
// successful call with Success false and Error set.
type Result struct {
	Success bool     `json:"success"`
	Output  string   `json:"output"`
	Error   *string  `json:"error"`
	Files   []string `json:"files"`
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Configured() bool { return c.apiKey != "" && c.baseURL != "" }

type executeRequest struct {
	Code string `json:"code"`
}

// Execute posts code to {base}/execute and decodes the interpreter result.
func (c *Client) Execute(ctx context.Context, code string) (*Result, error) {
	if !c.Configured() {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	body, err := json.Marshal(executeRequest{Code: code})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sandbox returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode sandbox response: %w", err)
	}
	if res.Files == nil {
		res.Files = []string{}
	}
	return &res, nil
}
