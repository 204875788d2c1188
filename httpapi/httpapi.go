// Package httpapi exposes the streaming pipeline over HTTP: the component
// stream and its control endpoints, the image-ready broadcast feed and the
// health endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"goa.design/clue/debug"
	"goa.design/clue/health"
	"goa.design/clue/log"

	"github.com/genui/genui/images"
	"github.com/genui/genui/stream"
)

type (
	// Service wires the HTTP endpoints to the session controller and the
	// image subsystem.
	Service struct {
		ctrl    *stream.Controller
		gen     images.Generator
		assets  *images.Store
		hub     *images.Hub
		pingers []health.Pinger
	}

	// Options configures the HTTP service.
	Options struct {
		// Controller drives generation sessions. Required.
		Controller *stream.Controller
		// Generator serves the standalone image generation endpoint. Nil
		// disables it.
		Generator images.Generator
		// Assets backs the image listing endpoint. Optional.
		Assets *images.Store
		// Hub feeds the image-ready broadcast endpoint. Optional.
		Hub *images.Hub
		// Pingers are checked by the health endpoint.
		Pingers []health.Pinger
	}
)

// New builds the HTTP service.
func New(opts Options) (*Service, error) {
	if opts.Controller == nil {
		return nil, errors.New("controller is required")
	}
	return &Service{
		ctrl:    opts.Controller,
		gen:     opts.Generator,
		assets:  opts.Assets,
		hub:     opts.Hub,
		pingers: opts.Pingers,
	}, nil
}

// Handler returns the routed handler wrapped with the request logging
// middleware. ctx carries the logger; dbg additionally logs request and
// response bodies.
func (s *Service) Handler(ctx context.Context, dbg bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/button-click", s.handleButtonClick)
	mux.HandleFunc("POST /api/set-model", s.handleSetModel)
	mux.HandleFunc("GET /api/model", s.handleGetModel)
	mux.HandleFunc("GET /api/images/stream", s.handleImageStream)
	mux.HandleFunc("POST /api/images/generate", s.handleGenerateImage)
	mux.HandleFunc("GET /api/images", s.handleListImages)

	check := health.Handler(health.NewChecker(s.pingers...))
	mux.Handle("GET /healthz", check)
	mux.Handle("GET /livez", check)

	var handler http.Handler = mux
	if dbg {
		handler = debug.HTTP()(handler)
	}
	return log.HTTP(ctx)(handler)
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	s.generate(w, r, prompt)
}

func (s *Service) handleButtonClick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content any `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	content, ok := body.Content.(string)
	if !ok || content == "" {
		writeError(w, http.StatusBadRequest, "Invalid button content")
		return
	}
	s.generate(w, r, stream.ButtonPrompt(content))
}

func (s *Service) generate(w http.ResponseWriter, r *http.Request, prompt string) {
	ctx := r.Context()
	sink, err := NewSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.ctrl.Generate(ctx, prompt, sink); err != nil {
		// The controller already applied the failure contract; the client
		// observes either the error envelope or a closed channel.
		log.Errorf(ctx, err, "generate session")
	}
}

func (s *Service) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Model == "" {
		writeError(w, http.StatusBadRequest, "Model is required")
		return
	}
	if err := s.ctrl.SetModel(body.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf(r.Context(), "model updated to %q", body.Model)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Model updated",
		"model":   body.Model,
	})
}

func (s *Service) handleGetModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"model": s.ctrl.Model()})
}

// handleImageStream pushes image-ready events to the client until it
// disconnects. Disconnected listeners are deregistered so the broadcast list
// does not grow without bound.
func (s *Service) handleImageStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotFound, "image stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "response writer does not support streaming")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Errorf(r.Context(), err, "encode image event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Service) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		writeError(w, http.StatusServiceUnavailable, "image generation not available")
		return
	}
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	url, err := s.gen.Generate(r.Context(), body.Prompt, "6")
	if err != nil {
		log.Errorf(r.Context(), err, "generate image")
		writeError(w, http.StatusInternalServerError, "Failed to generate image")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"imageUrl": url})
}

func (s *Service) handleListImages(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		writeJSON(w, http.StatusOK, map[string]any{"images": map[int]string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": s.assets.All()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf(context.Background(), err, "encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
