package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ezsolvy/api/internal/config"
)

// PerplexityClient handles communication with the Perplexity API
type PerplexityClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// ResearchResult is a grounded answer with its source citations
type ResearchResult struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// NewPerplexityClient creates a new Perplexity API client
func NewPerplexityClient(cfg *config.PerplexityConfig) *PerplexityClient {
	return &PerplexityClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Research asks the online model for a grounded answer with citations.
func (c *PerplexityClient) Research(ctx context.Context, system, user string) (*ResearchResult, error) {
	reqBody := perplexityRequest{
		Model: c.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("perplexity API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var pResp perplexityResponse
	if err := json.Unmarshal(respBody, &pResp); err != nil {
		return nil, &MalformedResponseError{Provider: "perplexity", Err: err}
	}
	if len(pResp.Choices) == 0 {
		return nil, &MalformedResponseError{Provider: "perplexity", Err: fmt.Errorf("no choices in response")}
	}

	return &ResearchResult{
		Content:   pResp.Choices[0].Message.Content,
		Citations: pResp.Citations,
	}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *PerplexityClient) IsConfigured() bool {
	return c.apiKey != ""
}
