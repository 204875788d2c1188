package openai

import (
	"context"
	"io"
	"sync"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/genui/genui/model"
)

// streamer adapts an OpenAI chat completion stream to the model.Streamer
// interface. A pump goroutine translates chunk deltas; Recv drains the
// channel.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.ChatCompletionChunk]

	chunks chan model.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.ChatCompletionChunk]) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: stream,
		chunks: make(chan model.Chunk, 32),
	}
	go s.run()
	return s
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.setErr(err)
		return model.Chunk{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	t := &deltaTranslator{emit: s.emit}
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(wrapOverload(err))
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			} else {
				s.setErr(nil)
			}
			return
		}
		if err := t.handle(s.stream.Current()); err != nil {
			s.setErr(err)
			return
		}
	}
}

func (s *streamer) emit(chunk model.Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- chunk:
		return nil
	}
}

func (s *streamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *streamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}

// deltaTranslator converts Chat Completions deltas into model.Chunks. The
// Completions protocol has no explicit tool-call-stop event; the stop is
// synthesized from finish_reason "tool_calls".
type deltaTranslator struct {
	emit func(model.Chunk) error

	// toolOpen tracks whether a tool call announcement was seen so the
	// finish_reason can be translated into a tool_call_stop.
	toolOpen bool
}

func (t *deltaTranslator) handle(chunk sdk.ChatCompletionChunk) error {
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]

	for _, tc := range choice.Delta.ToolCalls {
		if tc.ID != "" || tc.Function.Name != "" {
			if !t.toolOpen {
				t.toolOpen = true
				if err := t.emit(model.Chunk{
					Type:     model.ChunkTypeToolCallStart,
					ToolCall: &model.ToolCallRef{ID: tc.ID, Name: tc.Function.Name},
				}); err != nil {
					return err
				}
			}
		}
		if tc.Function.Arguments != "" {
			if err := t.emit(model.Chunk{
				Type:      model.ChunkTypeToolCallDelta,
				ToolDelta: tc.Function.Arguments,
			}); err != nil {
				return err
			}
		}
	}

	if choice.Delta.Content != "" {
		if err := t.emit(model.Chunk{Type: model.ChunkTypeText, Text: choice.Delta.Content}); err != nil {
			return err
		}
	}

	switch choice.FinishReason {
	case "":
		return nil
	case "tool_calls":
		if t.toolOpen {
			t.toolOpen = false
			if err := t.emit(model.Chunk{Type: model.ChunkTypeToolCallStop}); err != nil {
				return err
			}
		}
		return t.emit(model.Chunk{Type: model.ChunkTypeStop, StopReason: "tool_calls"})
	default:
		return t.emit(model.Chunk{Type: model.ChunkTypeStop, StopReason: choice.FinishReason})
	}
}
