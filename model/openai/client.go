// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates normalized requests into streaming
// completion calls using github.com/openai/openai-go and maps the delta
// protocol (content fragments, tool_calls deltas, finish_reason) into the
// chunk events consumed by the streaming pipeline.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/genui/genui/model"
)

type (
	// ChatClient captures the subset of the OpenAI SDK used by the adapter.
	// Satisfied by the SDK's chat completion service so tests can substitute
	// a fake.
	ChatClient interface {
		NewStreaming(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.ChatCompletionChunk]
	}

	// Options configures the adapter.
	Options struct {
		// DefaultModel is the model identifier used when the request leaves
		// Model empty.
		DefaultModel string

		// MaxTokens sets the default completion cap. Zero leaves the cap to
		// the provider.
		MaxTokens int
	}

	// Client implements model.Client via OpenAI Chat Completions.
	Client struct {
		chat         ChatClient
		defaultModel string
		maxTok       int
	}
)

// New builds an OpenAI-backed model client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{chat: chat, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Stream opens a streaming chat completion and adapts its deltas into
// model.Chunks.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.chat.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		if isOverloaded(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrOverloaded, err)
		}
		return nil, fmt.Errorf("openai chat.completions stream: %w", err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareRequest(req model.Request) (*sdk.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, sdk.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		text := flattenParts(m.Parts)
		if text == "" {
			continue
		}
		switch m.Role {
		case model.RoleUser:
			messages = append(messages, sdk.UserMessage(text))
		case model.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(text))
		case model.RoleSystem:
			messages = append(messages, sdk.SystemMessage(text))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: messages,
	}
	if maxTok := req.MaxTokens; maxTok > 0 {
		params.MaxTokens = sdk.Int(int64(maxTok))
	} else if c.maxTok > 0 {
		params.MaxTokens = sdk.Int(int64(c.maxTok))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}
	return &params, nil
}

// flattenParts joins message parts into plain text. The Chat Completions
// continuation replays tool use and tool results as ordinary text turns, the
// way the original request embedding works; only the Anthropic adapter uses
// the structured tool_use/tool_result blocks.
func flattenParts(parts []model.Part) string {
	var text string
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			text += v.Text
		case model.ToolUsePart:
			text += fmt.Sprintf("[calling %s with %s]", v.Name, string(v.Input))
		case model.ToolResultPart:
			text += v.Content
		}
	}
	return text
}

func encodeTools(defs []*model.ToolDefinition) []sdk.ChatCompletionToolParam {
	tools := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		tools = append(tools, sdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: sdk.String(def.Description),
				Parameters:  shared.FunctionParameters(def.InputSchema),
			},
		})
	}
	return tools
}

func isOverloaded(err error) bool {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == 429 || apierr.StatusCode == 503
	}
	return false
}

// wrapOverload tags overload errors with model.ErrOverloaded. Applied both
// when opening a stream and when one fails mid-drain.
func wrapOverload(err error) error {
	if isOverloaded(err) {
		return fmt.Errorf("%w: %w", model.ErrOverloaded, err)
	}
	return err
}
