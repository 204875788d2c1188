package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/genui/genui/stream"
	"github.com/genui/genui/ui"
)

// SSESink writes stream events as server-sent events. One sink serves one
// request; methods are called from the handler goroutine only.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	sent    bool
	ended   bool
}

var _ stream.Sink = (*SSESink)(nil)

// NewSSESink prepares w for event streaming and returns the sink. It fails if
// the response writer does not support flushing.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return &SSESink{w: w, flusher: flusher}, nil
}

// Send implements stream.Sink.
func (s *SSESink) Send(_ context.Context, ev ui.Event) error {
	if s.ended {
		return fmt.Errorf("send on ended stream")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	s.sent = true
	return nil
}

// End implements stream.Sink. The sentinel is written at most once.
func (s *SSESink) End(context.Context) error {
	if s.ended {
		return nil
	}
	s.ended = true
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", stream.DoneSentinel); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Sent implements stream.Sink.
func (s *SSESink) Sent() bool { return s.sent }
