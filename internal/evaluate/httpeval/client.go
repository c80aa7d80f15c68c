// Package httpeval calls the external content-evaluation service over HTTP.
package httpeval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// Config controls the evaluation client.
type Config struct {
	// BaseURL of the evaluation service, e.g. "https://eval.internal:8443".
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Timeout bounds a single evaluation call. The orchestrator's per-check
	// timeout still applies on top via ctx.
	Timeout time.Duration
}

// Client implements analysis.Evaluator against a JSON API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("evaluator base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type evaluateRequest struct {
	URL    string `json:"url"`
	Sample string `json:"sample"`
}

// Evaluate submits a content sample and returns the service's judgment.
func (c *Client) Evaluate(ctx context.Context, pageURL string, sample []byte) (analysis.Judgment, error) {
	payload, err := json.Marshal(evaluateRequest{URL: pageURL, Sample: string(sample)})
	if err != nil {
		return analysis.Judgment{}, fmt.Errorf("marshal evaluate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/evaluate", bytes.NewReader(payload))
	if err != nil {
		return analysis.Judgment{}, fmt.Errorf("build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return analysis.Judgment{}, fmt.Errorf("call evaluation service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return analysis.Judgment{}, fmt.Errorf("evaluation service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var judgment analysis.Judgment
	if err := json.NewDecoder(resp.Body).Decode(&judgment); err != nil {
		return analysis.Judgment{}, fmt.Errorf("decode evaluation response: %w", err)
	}
	if judgment.Score < 0 || judgment.Score > 100 {
		return analysis.Judgment{}, fmt.Errorf("evaluation score %d out of range", judgment.Score)
	}
	return judgment, nil
}
