package dalle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultEndpoint = "https://api.openai.com/v1/images/generations"

// ModerationError signals that the vendor rejected the prompt. Retrying
// the same prompt cannot succeed, so the pipeline treats it as permanent.
type ModerationError struct {
	Reason string
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("prompt rejected by content moderation: %s", e.Reason)
}

// Client calls the hosted image generation API.
type Client struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:   apiKey,
		Endpoint: defaultEndpoint,
		HTTPClient: &http.Client{
			// generation regularly takes tens of seconds
			Timeout: 120 * time.Second,
		},
	}
}

type generationRequest struct {
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type generationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate requests n images for the prompt and returns the vendor's
// short-lived result URLs.
func (c *Client) Generate(ctx context.Context, prompt string, n int, size string) ([]string, error) {
	payload, err := json.Marshal(generationRequest{
		Prompt:         prompt,
		N:              n,
		Size:           size,
		ResponseFormat: "url",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("generation API returned undecodable response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if body.Error != nil && body.Error.Code == "content_policy_violation" {
			return nil, &ModerationError{Reason: body.Error.Message}
		}
		if body.Error != nil {
			return nil, fmt.Errorf("generation API returned status %d: %s", resp.StatusCode, body.Error.Message)
		}
		return nil, fmt.Errorf("generation API returned status %d", resp.StatusCode)
	}

	if len(body.Data) == 0 {
		return nil, fmt.Errorf("generation API returned no images")
	}
	urls := make([]string, 0, len(body.Data))
	for _, item := range body.Data {
		urls = append(urls, item.URL)
	}
	return urls, nil
}

// Fetch downloads one generated image from its result URL. The URLs
// expire shortly after generation, so callers fetch right away.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
