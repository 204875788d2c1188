package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/clue/log"

	"github.com/genui/genui/images"
	"github.com/genui/genui/model"
	"github.com/genui/genui/stream"
	"github.com/genui/genui/ui"
)

// stubClient replays one scripted text completion per Stream call.
type stubClient struct {
	text string
	reqs []model.Request
}

type stubStreamer struct {
	chunks []model.Chunk
	pos    int
}

func (s *stubStreamer) Recv() (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *stubStreamer) Close() error { return nil }

func (c *stubClient) Stream(_ context.Context, req model.Request) (model.Streamer, error) {
	c.reqs = append(c.reqs, req)
	return &stubStreamer{chunks: []model.Chunk{
		{Type: model.ChunkTypeText, Text: c.text},
		{Type: model.ChunkTypeStop, StopReason: "end_turn"},
	}}, nil
}

func newTestService(t *testing.T, opts Options) (*Service, *stubClient) {
	t.Helper()
	client := &stubClient{text: `[{"type":"text","props":{"content":"Hello"}}]`}
	ctrl, err := stream.NewController(stream.ControllerOptions{
		Anthropic: client,
		Model:     "claude-test",
	})
	require.NoError(t, err)
	opts.Controller = ctrl
	svc, err := New(opts)
	require.NoError(t, err)
	return svc, client
}

func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	for _, line := range strings.Split(body, "\n") {
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			frames = append(frames, rest)
		}
	}
	return frames
}

func TestGenerateStreamsComponents(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	h := svc.Handler(log.Context(context.Background()), false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generate?prompt=hi", nil))

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	require.JSONEq(t, `{"type":"text","props":{"content":"Hello"}}`, frames[0])
	require.Equal(t, stream.DoneSentinel, frames[1])
}

func TestGenerateRequiresPrompt(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	h := svc.Handler(log.Context(context.Background()), false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generate", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestButtonClick(t *testing.T) {
	svc, client := newTestService(t, Options{})
	h := svc.Handler(log.Context(context.Background()), false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/button-click", strings.NewReader(`{"content":"More"}`))
	h.ServeHTTP(rec, req)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	require.Len(t, client.reqs, 1)
	last := client.reqs[0].Messages[len(client.reqs[0].Messages)-1]
	require.Contains(t, last.Parts[0].(model.TextPart).Text, `clicked the button that says: "More"`)
}

func TestButtonClickRejectsNonString(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	h := svc.Handler(log.Context(context.Background()), false)

	for _, body := range []string{`{"content":{"x":1}}`, `{"content":""}`, `{}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/button-click", strings.NewReader(body))
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestSetModel(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	h := svc.Handler(log.Context(context.Background()), false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/set-model", strings.NewReader(`{"model":"claude-other"}`))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "claude-other", resp["model"])

	// Missing model name.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/set-model", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// No OpenAI client configured.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/set-model", strings.NewReader(`{"model":"gpt-4o-mini"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "claude-other", resp["model"])
}

type fixedGenerator struct {
	url string
	err error
}

func (g *fixedGenerator) Generate(context.Context, string, string) (string, error) {
	return g.url, g.err
}

func TestGenerateImageEndpoint(t *testing.T) {
	svc, _ := newTestService(t, Options{Generator: &fixedGenerator{url: "https://img.example.com/a.png"}})
	h := svc.Handler(log.Context(context.Background()), false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/images/generate", strings.NewReader(`{"prompt":"a barn"}`))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "https://img.example.com/a.png", resp["imageUrl"])
}

func TestGenerateImageFailure(t *testing.T) {
	svc, _ := newTestService(t, Options{Generator: &fixedGenerator{err: errors.New("capacity")}})
	h := svc.Handler(log.Context(context.Background()), false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/images/generate", strings.NewReader(`{"prompt":"a barn"}`))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListImages(t *testing.T) {
	assets := images.NewStore()
	assets.Set(1000, "https://img.example.com/a.png")
	svc, _ := newTestService(t, Options{Assets: assets})
	h := svc.Handler(log.Context(context.Background()), false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"images":{"1000":"https://img.example.com/a.png"}}`, rec.Body.String())
}

func TestImageStreamBroadcast(t *testing.T) {
	hub := images.NewHub()
	svc, _ := newTestService(t, Options{Hub: hub})
	srv := httptest.NewServer(svc.Handler(log.Context(context.Background()), false))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/images/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Publish until the stream goroutine has subscribed and relayed one
	// event; duplicates are fine, the reader stops at the first frame.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Publish(images.Ready{AssetID: 1000, URL: "https://img.example.com/a.png"})
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			require.JSONEq(t, `{"imageAssetId":1000,"imageUrl":"https://img.example.com/a.png"}`, rest)
			return
		}
	}
	t.Fatal("no image event received")
}

func TestHealthz(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	h := svc.Handler(log.Context(context.Background()), false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSSESinkContract(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	require.NoError(t, err)
	require.False(t, sink.Sent())

	require.NoError(t, sink.Send(context.Background(), ui.NewText("hi", "a", "6")))
	require.True(t, sink.Sent())

	require.NoError(t, sink.End(context.Background()))
	// End is idempotent; the sentinel appears exactly once.
	require.NoError(t, sink.End(context.Background()))
	require.Equal(t, 1, strings.Count(rec.Body.String(), stream.DoneSentinel))
	require.Error(t, sink.Send(context.Background(), ui.Clear{}))
}
