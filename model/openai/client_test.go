package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/genui/genui/model"
)

func TestPrepareRequestFlattensHistory(t *testing.T) {
	c, err := New(stubChat{}, Options{DefaultModel: "gpt-4o-mini", MaxTokens: 2048})
	require.NoError(t, err)

	params, err := c.prepareRequest(model.Request{
		System: "emit JSON",
		Messages: []*model.Message{
			model.Text(model.RoleUser, "find pizza"),
			{Role: model.RoleAssistant, Parts: []model.Part{
				model.TextPart{Text: "I'll look that up."},
				model.ToolUsePart{ID: "t1", Name: "get_products", Input: json.RawMessage(`{"query":"pizza"}`)},
			}},
			{Role: model.RoleUser, Parts: []model.Part{
				model.ToolResultPart{ToolUseID: "t1", Content: "results here"},
			}},
		},
		Tools: []*model.ToolDefinition{{
			Name:        "get_products",
			Description: "Search products",
			InputSchema: map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)
	// System prompt plus the three turns.
	require.Len(t, params.Messages, 4)
	require.Len(t, params.Tools, 1)
	require.Equal(t, "get_products", params.Tools[0].Function.Name)
	require.EqualValues(t, "gpt-4o-mini", params.Model)
}

func TestDeltaTranslatorToolLifecycle(t *testing.T) {
	var chunks []model.Chunk
	tr := &deltaTranslator{emit: func(c model.Chunk) error {
		chunks = append(chunks, c)
		return nil
	}}

	feed := []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_products","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"laptops\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	}
	for _, raw := range feed {
		var chunk sdk.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(raw), &chunk))
		require.NoError(t, tr.handle(chunk))
	}

	types := make([]string, len(chunks))
	for i, c := range chunks {
		types[i] = c.Type
	}
	require.Equal(t, []string{
		model.ChunkTypeToolCallStart,
		model.ChunkTypeToolCallDelta,
		model.ChunkTypeToolCallDelta,
		model.ChunkTypeToolCallStop,
		model.ChunkTypeStop,
	}, types)
	require.Equal(t, "call_1", chunks[0].ToolCall.ID)
	require.Equal(t, `{"query":"laptops"}`, chunks[1].ToolDelta+chunks[2].ToolDelta)
	require.Equal(t, "tool_calls", chunks[4].StopReason)
}

func TestDeltaTranslatorPlainContent(t *testing.T) {
	var chunks []model.Chunk
	tr := &deltaTranslator{emit: func(c model.Chunk) error {
		chunks = append(chunks, c)
		return nil
	}}

	feed := []string{
		`{"choices":[{"delta":{"content":"[{\"type\":"}}]}`,
		`{"choices":[{"delta":{"content":"\"text\"}]"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}
	for _, raw := range feed {
		var chunk sdk.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(raw), &chunk))
		require.NoError(t, tr.handle(chunk))
	}

	require.Len(t, chunks, 3)
	require.Equal(t, model.ChunkTypeText, chunks[0].Type)
	require.Equal(t, model.ChunkTypeStop, chunks[2].Type)
	require.Equal(t, "stop", chunks[2].StopReason)
}

func TestStreamerClassifiesOverloadMidStream(t *testing.T) {
	events := []ssestream.Event{{
		Data: []byte(`{"choices":[{"delta":{"content":"[{"}}]}`),
	}}
	apiErr := &sdk.Error{
		StatusCode: 429,
		Request:    httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil),
		Response:   &http.Response{StatusCode: 429},
	}
	stream := ssestream.NewStream[sdk.ChatCompletionChunk](&testDecoder{events: events, err: apiErr}, nil)
	s := newStreamer(context.Background(), stream)
	defer func() { _ = s.Close() }()

	ch, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, model.ChunkTypeText, ch.Type)

	_, err = s.Recv()
	require.ErrorIs(t, err, model.ErrOverloaded)
}

// testDecoder feeds a fixed sequence of events to the ssestream.Stream. A
// non-nil err surfaces once the events are drained.
type testDecoder struct {
	events []ssestream.Event
	i      int
	err    error
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return d.err }

type stubChat struct{}

func (stubChat) NewStreaming(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.ChatCompletionChunk] {
	return nil
}
