package images

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const falDefaultBaseURL = "https://fal.run/fal-ai/fast-lightning-sdxl"

// promptSuffix steers the SDXL model towards photographic output.
const promptSuffix = " Make the image a hyper-realistic photo."

type (
	// FalGenerator generates images with the fal.ai fast-lightning-sdxl
	// model.
	FalGenerator struct {
		http    *http.Client
		apiKey  string
		baseURL string
	}

	// FalOptions configures the fal.ai generator.
	FalOptions struct {
		// APIKey is the fal.ai credentials string.
		APIKey string
		// BaseURL overrides the model endpoint, for tests.
		BaseURL string
		// HTTPClient overrides the default HTTP client.
		HTTPClient *http.Client
	}

	falRequest struct {
		Prompt    string `json:"prompt"`
		ImageSize string `json:"image_size"`
	}

	falResponse struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	}
)

// NewFal builds a fal.ai generator.
func NewFal(opts FalOptions) (*FalGenerator, error) {
	if opts.APIKey == "" {
		return nil, errors.New("fal api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = falDefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &FalGenerator{http: hc, apiKey: opts.APIKey, baseURL: baseURL}, nil
}

// Generate implements Generator.
func (g *FalGenerator) Generate(ctx context.Context, prompt, columns string) (string, error) {
	body, err := json.Marshal(falRequest{
		Prompt:    prompt + promptSuffix,
		ImageSize: "square_hd",
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fal generate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fal generate: unexpected status %d", resp.StatusCode)
	}
	var decoded falResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("fal generate: decode response: %w", err)
	}
	if len(decoded.Images) == 0 || decoded.Images[0].URL == "" {
		return "", errors.New("fal generate: no image in response")
	}
	return decoded.Images[0].URL, nil
}
