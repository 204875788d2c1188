// Package images provides image asset generation for components that render a
// picture. Generation is awaited before the component is emitted; completed
// assets are also broadcast on a side channel so already-rendered views can
// swap in the final URL.
package images

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// FallbackURL is attached to a component when asset generation fails.
const FallbackURL = "/img/default-image.png"

// firstAssetID seeds per-request asset counters. Starting above zero keeps
// asset ids visually distinct from component ids in rendered markup.
const firstAssetID = 1000

type (
	// Generator produces an image URL for a prompt. The columns hint conveys
	// the rendered width of the target component.
	Generator interface {
		Generate(ctx context.Context, prompt, columns string) (string, error)
	}

	// Counter hands out request-scoped asset ids.
	Counter struct {
		next atomic.Int64
	}

	// Store maps asset ids to generated URLs.
	Store struct {
		mu   sync.RWMutex
		urls map[int]string
	}

	// Ready announces a completed asset on the broadcast channel.
	Ready struct {
		AssetID int    `json:"imageAssetId"`
		URL     string `json:"imageUrl"`
	}

	// Hub fans Ready events out to subscribed listeners. Slow listeners drop
	// events rather than block generation.
	Hub struct {
		mu   sync.Mutex
		subs map[chan Ready]struct{}
	}

	limited struct {
		gen     Generator
		limiter *rate.Limiter
	}
)

// NewCounter returns a counter whose first id is 1000.
func NewCounter() *Counter {
	c := &Counter{}
	c.next.Store(firstAssetID)
	return c
}

// Next returns the next asset id.
func (c *Counter) Next() int {
	return int(c.next.Add(1) - 1)
}

// NewStore returns an empty asset store.
func NewStore() *Store {
	return &Store{urls: make(map[int]string)}
}

// Set records the URL for an asset id.
func (s *Store) Set(id int, url string) {
	s.mu.Lock()
	s.urls[id] = url
	s.mu.Unlock()
}

// Get returns the URL for an asset id.
func (s *Store) Get(id int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.urls[id]
	return url, ok
}

// All returns a snapshot of every stored asset.
func (s *Store) All() map[int]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]string, len(s.urls))
	for id, url := range s.urls {
		out[id] = url
	}
	return out
}

// NewHub returns a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Ready]struct{})}
}

// Subscribe registers a listener. The returned channel is buffered; callers
// must Unsubscribe when done.
func (h *Hub) Subscribe() chan Ready {
	ch := make(chan Ready, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener channel.
func (h *Hub) Unsubscribe(ch chan Ready) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers ev to every subscriber that has buffer room.
func (h *Hub) Publish(ev Ready) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Limit wraps gen so that calls wait on the given rate limiter. A nil limiter
// returns gen unchanged.
func Limit(gen Generator, limiter *rate.Limiter) Generator {
	if limiter == nil {
		return gen
	}
	return &limited{gen: gen, limiter: limiter}
}

func (l *limited) Generate(ctx context.Context, prompt, columns string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.gen.Generate(ctx, prompt, columns)
}
