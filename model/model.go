// Package model provides a provider-agnostic abstraction over streaming chat
// completion APIs (Anthropic, OpenAI) so the streaming pipeline can consume
// model output without coupling to specific SDKs. Adapters translate vendor
// event shapes into the normalized chunk events consumed by the multiplexer;
// the provider boundary is the only place vendor shapes appear.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

type (
	// Client is the contract the pipeline uses to open model streams.
	// Implementations wrap provider SDKs and must be safe for concurrent use
	// across sessions.
	Client interface {
		// Stream sends a chat completion request and returns a Streamer that
		// yields incremental chunks. The returned Streamer must be closed by
		// the caller.
		Stream(ctx context.Context, req Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Successive calls to Recv
	// return Chunk values until io.EOF. Safe to call from a single goroutine.
	Streamer interface {
		// Recv returns the next chunk from the stream.
		Recv() (Chunk, error)
		// Close releases the underlying stream resources.
		Close() error
	}

	// Request captures the normalized parameters for a model invocation.
	Request struct {
		// Model is the provider-specific model identifier.
		Model string

		// System is the system prompt, when any.
		System string

		// Messages is the ordered conversation, oldest first.
		Messages []*Message

		// Tools lists the tool schemas exposed to the model. Empty disables
		// tool use, which is how continuation streams are issued.
		Tools []*ToolDefinition

		// MaxTokens caps completion length. Zero uses the adapter default.
		MaxTokens int

		// Temperature controls sampling. Zero uses the provider default.
		Temperature float64
	}

	// Message is one conversation turn. Parts carries the typed content
	// blocks; plain text turns have a single TextPart.
	Message struct {
		Role  string
		Parts []Part
	}

	// Part is a typed content block within a message.
	Part interface{ isPart() }

	// TextPart is plain message text.
	TextPart struct {
		Text string
	}

	// ToolUsePart records a tool invocation inside an assistant turn. Used
	// when replaying the tool call into the continuation request history.
	ToolUsePart struct {
		ID    string
		Name  string
		Input json.RawMessage
	}

	// ToolResultPart carries a tool result inside a user turn of the
	// continuation request.
	ToolResultPart struct {
		ToolUseID string
		Content   string
	}

	// ToolDefinition describes a tool schema passed to the provider for
	// function calling.
	ToolDefinition struct {
		// Name is the identifier presented to the model.
		Name string
		// Description documents the tool for prompting purposes.
		Description string
		// InputSchema is the JSON Schema object describing the tool's input.
		InputSchema map[string]any
	}

	// ToolCallRef identifies a tool call announced by the model.
	ToolCallRef struct {
		ID   string
		Name string
	}

	// Chunk is a normalized streaming event. Type indicates which payload
	// fields are populated:
	//
	//   - ChunkTypeText:          Text carries a content delta.
	//   - ChunkTypeToolCallStart: ToolCall carries the tool name and id.
	//   - ChunkTypeToolCallDelta: ToolDelta carries raw partial-JSON
	//                             argument text to append verbatim.
	//   - ChunkTypeToolCallStop:  the active tool call's arguments are
	//                             complete.
	//   - ChunkTypeStop:          StopReason explains termination.
	Chunk struct {
		Type       string
		Text       string
		ToolCall   *ToolCallRef
		ToolDelta  string
		StopReason string
	}
)

func (TextPart) isPart()       {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chunk type constants populate Chunk.Type.
const (
	ChunkTypeText          = "text"
	ChunkTypeToolCallStart = "tool_call_start"
	ChunkTypeToolCallDelta = "tool_call_delta"
	ChunkTypeToolCallStop  = "tool_call_stop"
	ChunkTypeStop          = "stop"
)

// ErrOverloaded indicates the provider rejected the request due to overload
// or quota exhaustion. The session controller maps it to the user-facing
// overload error when no output has been sent yet.
var ErrOverloaded = errors.New("model: provider overloaded")

// Text builds a plain text message with the given role.
func Text(role, text string) *Message {
	return &Message{Role: role, Parts: []Part{TextPart{Text: text}}}
}
