package stream

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/genui/genui/jsonarray"
	"github.com/genui/genui/model"
	"github.com/genui/genui/ui"
)

// loadingColumns is the width hint for the transient loading marker.
const loadingColumns = "6"

type (
	// multiplexer consumes one model stream, routing content deltas through
	// the recovery parser to the dispatcher and accumulating tool-call
	// argument fragments. One instance serves one sub-stream (primary or
	// continuation); the buffer is never shared across requests.
	multiplexer struct {
		dispatcher *Dispatcher
		sink       Sink

		buffer strings.Builder
		full   strings.Builder

		tool *toolInvocation

		// incompleteLogged suppresses repeat logging of the routine
		// buffer-still-incomplete condition.
		incompleteLogged bool
	}

	// toolInvocation is the ephemeral record of the single tool call a
	// stream may carry. Argument fragments are appended verbatim; the buffer
	// is parsed as one JSON object only when the stop event arrives.
	toolInvocation struct {
		ID   string
		Name string
		args strings.Builder
		done bool
	}

	// streamResult is what a drained sub-stream produced.
	streamResult struct {
		// fullText is the concatenation of every content delta, recorded for
		// session continuity.
		fullText string
		// tool is the completed tool invocation, if the model issued one.
		tool *toolInvocation
	}
)

func newMultiplexer(d *Dispatcher, sink Sink) *multiplexer {
	return &multiplexer{dispatcher: d, sink: sink}
}

// run drains the stream to completion, returning the accumulated text and
// the tool invocation when the model issued one. Tool execution happens after
// the stream is drained; the model signals stop immediately after closing the
// tool argument block, so draining first keeps one code path for both plain
// and tool-bearing streams.
func (m *multiplexer) run(ctx context.Context, s model.Streamer) (*streamResult, error) {
	defer s.Close()
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := m.handle(ctx, chunk); err != nil {
			return nil, err
		}
	}
	res := &streamResult{fullText: m.full.String()}
	if m.tool != nil && m.tool.done {
		res.tool = m.tool
	}
	return res, nil
}

func (m *multiplexer) handle(ctx context.Context, chunk model.Chunk) error {
	switch chunk.Type {
	case model.ChunkTypeText:
		return m.content(ctx, chunk.Text)
	case model.ChunkTypeToolCallStart:
		if chunk.ToolCall == nil {
			return nil
		}
		return m.toolStart(ctx, chunk.ToolCall)
	case model.ChunkTypeToolCallDelta:
		if m.tool != nil && !m.tool.done {
			m.tool.args.WriteString(chunk.ToolDelta)
		}
		return nil
	case model.ChunkTypeToolCallStop:
		if m.tool != nil {
			m.tool.done = true
		}
		return nil
	case model.ChunkTypeStop:
		return nil
	default:
		log.Debugf(ctx, "ignoring unknown chunk type %q", chunk.Type)
		return nil
	}
}

// content appends a delta to the buffer and flushes every component the
// recovery parser can extract. An unparseable buffer is routine mid-element
// state, not an error; it is logged at most once per stream.
func (m *multiplexer) content(ctx context.Context, delta string) error {
	if delta == "" {
		return nil
	}
	m.buffer.WriteString(delta)
	m.full.WriteString(delta)

	elems, consumed := jsonarray.TryExtract(m.buffer.String())
	if !consumed {
		if !m.incompleteLogged {
			log.Debugf(ctx, "buffer incomplete, accumulating")
			m.incompleteLogged = true
		}
		return nil
	}

	comps, err := ui.DecodeComponents(elems)
	if err != nil {
		// Structurally complete but semantically bogus; drop the batch and
		// keep streaming.
		log.Errorf(ctx, err, "decode extracted components")
		m.buffer.Reset()
		return nil
	}
	m.buffer.Reset()
	return m.dispatcher.Dispatch(ctx, comps, m.sink)
}

// toolStart records the invocation and tells the client to discard any
// speculative content rendered before the tool call.
func (m *multiplexer) toolStart(ctx context.Context, ref *model.ToolCallRef) error {
	if m.tool != nil {
		log.Printf(ctx, "ignoring second tool call %q, one tool call per request", ref.Name)
		return nil
	}
	id := ref.ID
	if id == "" {
		id = uuid.NewString()
	}
	m.tool = &toolInvocation{ID: id, Name: ref.Name}

	if err := m.sink.Send(ctx, ui.Clear{}); err != nil {
		return err
	}
	return m.sink.Send(ctx, ui.NewText("🔍 Searching...", loadingID(ref.Name), loadingColumns))
}

// loadingID is the stable id of the transient loading marker, so the
// controller can remove it once the tool resolves.
func loadingID(toolName string) string {
	return "loading-" + toolName
}
