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
	"github.com/ezsolvy/api/internal/model"
)

// NanoBananaClient talks to the image editing and diagram rendering API
type NanoBananaClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// DiagramSpec describes one diagram for the renderer
type DiagramSpec struct {
	Title    string          `json:"title"`
	Type     string          `json:"type"`
	Style    string          `json:"style,omitempty"`
	Elements json.RawMessage `json:"elements,omitempty"`
}

type editImageRequest struct {
	ImageBase64 string            `json:"image_base64"`
	Plan        *model.RenderPlan `json:"plan"`
}

type editImageResponse struct {
	ImageBase64 string `json:"image_base64"`
}

// NewNanoBananaClient creates a new NanoBanana API client
func NewNanoBananaClient(cfg *config.NanoBananaConfig) *NanoBananaClient {
	return &NanoBananaClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// EditImage renders a plan against a source image and returns the edited
// image as base64. An OK response without an image field is a hard failure.
func (c *NanoBananaClient) EditImage(ctx context.Context, imageBase64 string, plan *model.RenderPlan) (string, error) {
	reqBody := editImageRequest{
		ImageBase64: imageBase64,
		Plan:        plan,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/edit", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nanobanana API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var editResp editImageResponse
	if err := json.Unmarshal(respBody, &editResp); err != nil {
		return "", &MalformedResponseError{Provider: "nanobanana", Err: err}
	}
	if editResp.ImageBase64 == "" {
		return "", fmt.Errorf("nanobanana returned no edited image")
	}

	return editResp.ImageBase64, nil
}

// GenerateDiagram renders a diagram spec and returns raw PNG bytes.
func (c *NanoBananaClient) GenerateDiagram(ctx context.Context, spec *DiagramSpec) ([]byte, error) {
	bodyBytes, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(bodyBytes))
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
		return nil, fmt.Errorf("nanobanana API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if len(respBody) == 0 {
		return nil, fmt.Errorf("nanobanana returned an empty diagram")
	}

	return respBody, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *NanoBananaClient) IsConfigured() bool {
	return c.apiKey != ""
}
