package images

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type (
	// ImagesClient is the subset of the OpenAI SDK image service used by the
	// DALL·E generator.
	ImagesClient interface {
		Generate(ctx context.Context, body sdk.ImageGenerateParams, opts ...option.RequestOption) (*sdk.ImagesResponse, error)
	}

	// DalleGenerator generates images with DALL·E 3 via the OpenAI API.
	DalleGenerator struct {
		client ImagesClient
	}
)

// NewDalle wraps an OpenAI image client.
func NewDalle(client ImagesClient) *DalleGenerator {
	return &DalleGenerator{client: client}
}

// NewDalleFromAPIKey builds a generator from an API key.
func NewDalleFromAPIKey(apiKey string) *DalleGenerator {
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewDalle(&oc.Images)
}

// Generate implements Generator. The columns hint is ignored; DALL·E 3 only
// supports fixed resolutions.
func (g *DalleGenerator) Generate(ctx context.Context, prompt, columns string) (string, error) {
	resp, err := g.client.Generate(ctx, sdk.ImageGenerateParams{
		Model:  sdk.ImageModelDallE3,
		Prompt: prompt,
		N:      sdk.Int(1),
		Size:   sdk.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return "", fmt.Errorf("dalle generate: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("dalle generate: no image in response")
	}
	return resp.Data[0].URL, nil
}
