// Package session keeps short-lived conversational continuity between
// requests. Each completed request stores one turn; the next request replays a
// small window of recent turns so the model can resolve follow-up prompts.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/genui/genui/model"
)

// WindowSize is the number of recent turns replayed into a new request.
const WindowSize = 3

type (
	// Turn is one completed request/response exchange.
	Turn struct {
		User      string `json:"user"`
		Assistant string `json:"assistant"`
	}

	// Store persists turns keyed by a monotonically increasing session id.
	Store interface {
		// Save records the turn at the given id, overwriting any previous
		// value.
		Save(ctx context.Context, id int64, turn Turn) error
		// Window returns up to n turns ending at id, oldest first. Missing
		// ids are skipped.
		Window(ctx context.Context, id int64, n int) ([]Turn, error)
	}

	// Counter hands out session ids across requests.
	Counter struct {
		last atomic.Int64
	}

	// MemoryStore is a process-local store.
	MemoryStore struct {
		mu    sync.RWMutex
		turns map[int64]Turn
	}
)

// Next returns the next session id, starting at 1.
func (c *Counter) Next() int64 {
	return c.last.Add(1)
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[int64]Turn)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, id int64, turn Turn) error {
	s.mu.Lock()
	s.turns[id] = turn
	s.mu.Unlock()
	return nil
}

// Window implements Store.
func (s *MemoryStore) Window(_ context.Context, id int64, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]Turn, 0, n)
	for i := id - int64(n) + 1; i <= id; i++ {
		if turn, ok := s.turns[i]; ok {
			turns = append(turns, turn)
		}
	}
	return turns, nil
}

// Messages renders a window of turns as alternating user/assistant messages
// for a model request, oldest first.
func Messages(turns []Turn) []*model.Message {
	msgs := make([]*model.Message, 0, 2*len(turns))
	for _, turn := range turns {
		msgs = append(msgs,
			model.Text(model.RoleUser, turn.User),
			model.Text(model.RoleAssistant, turn.Assistant),
		)
	}
	return msgs
}
