package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/genui/genui/model"
)

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

func event(t *testing.T, typ, payload string) ssestream.Event {
	t.Helper()
	var ev sdk.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return ssestream.Event{Type: typ, Data: data}
}

func TestStreamerTextAndToolLifecycle(t *testing.T) {
	events := []ssestream.Event{
		event(t, "content_block_delta", `{
  "type": "content_block_delta",
  "index": 0,
  "delta": { "type": "text_delta", "text": "[{\"type\":\"text\"" }
}`),
		event(t, "content_block_start", `{
  "type": "content_block_start",
  "index": 1,
  "content_block": { "type": "tool_use", "id": "t1", "name": "get_yelp_businesses" }
}`),
		event(t, "content_block_delta", `{
  "type": "content_block_delta",
  "index": 1,
  "delta": { "type": "input_json_delta", "partial_json": "{\"query\":" }
}`),
		event(t, "content_block_delta", `{
  "type": "content_block_delta",
  "index": 1,
  "delta": { "type": "input_json_delta", "partial_json": "\"pizza\"}" }
}`),
		event(t, "content_block_stop", `{ "type": "content_block_stop", "index": 1 }`),
		event(t, "message_stop", `{ "type": "message_stop" }`),
	}

	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{events: events}, nil)
	s := newStreamer(context.Background(), stream)
	defer func() { _ = s.Close() }()

	var chunks []model.Chunk
	for {
		ch, err := s.Recv()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		chunks = append(chunks, ch)
	}

	types := make([]string, len(chunks))
	for i, ch := range chunks {
		types[i] = ch.Type
	}
	require.Equal(t, []string{
		model.ChunkTypeText,
		model.ChunkTypeToolCallStart,
		model.ChunkTypeToolCallDelta,
		model.ChunkTypeToolCallDelta,
		model.ChunkTypeToolCallStop,
		model.ChunkTypeStop,
	}, types)

	require.Equal(t, `[{"type":"text"`, chunks[0].Text)
	require.NotNil(t, chunks[1].ToolCall)
	require.Equal(t, "t1", chunks[1].ToolCall.ID)
	require.Equal(t, "get_yelp_businesses", chunks[1].ToolCall.Name)
	require.Equal(t, `{"query":`+`"pizza"}`, chunks[2].ToolDelta+chunks[3].ToolDelta)
}

func TestStreamerClassifiesOverloadMidStream(t *testing.T) {
	events := []ssestream.Event{
		event(t, "content_block_delta", `{
  "type": "content_block_delta",
  "index": 0,
  "delta": { "type": "text_delta", "text": "[{" }
}`),
	}
	apiErr := &sdk.Error{
		StatusCode: 529,
		Request:    httptest.NewRequest(http.MethodPost, "/v1/messages", nil),
		Response:   &http.Response{StatusCode: 529},
	}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{events: events, err: apiErr}, nil)
	s := newStreamer(context.Background(), stream)
	defer func() { _ = s.Close() }()

	ch, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, model.ChunkTypeText, ch.Type)

	_, err = s.Recv()
	require.ErrorIs(t, err, model.ErrOverloaded)
}

func TestStreamerCancelSurfacesContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{}, nil)
	s := newStreamer(ctx, stream)
	defer func() { _ = s.Close() }()

	cancel()
	for {
		_, err := s.Recv()
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			// Pump drained before observing cancellation; acceptable.
			return
		}
		require.ErrorIs(t, err, context.Canceled)
		return
	}
}

func TestPrepareRequestEncodesContinuationHistory(t *testing.T) {
	c, err := New(stubMessages{}, Options{DefaultModel: "claude-3-5-sonnet-latest"})
	require.NoError(t, err)

	input := json.RawMessage(`{"query":"pizza"}`)
	params, err := c.prepareRequest(model.Request{
		System: "emit JSON",
		Messages: []*model.Message{
			model.Text(model.RoleUser, "find pizza"),
			{Role: model.RoleAssistant, Parts: []model.Part{
				model.TextPart{Text: "I'll look that up."},
				model.ToolUsePart{ID: "t1", Name: "get_yelp_businesses", Input: input},
			}},
			{Role: model.RoleUser, Parts: []model.Part{
				model.ToolResultPart{ToolUseID: "t1", Content: "results"},
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, params.Messages, 3)
	require.Len(t, params.System, 1)
	require.Equal(t, "emit JSON", params.System[0].Text)
	require.EqualValues(t, defaultMaxTokens, params.MaxTokens)
}

func TestPrepareRequestRejectsEmptyConversation(t *testing.T) {
	c, err := New(stubMessages{}, Options{DefaultModel: "claude-3-5-sonnet-latest"})
	require.NoError(t, err)
	_, err = c.prepareRequest(model.Request{})
	require.Error(t, err)
}

type stubMessages struct{}

func (stubMessages) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	return nil
}
