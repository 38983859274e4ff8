// Package history keeps short-term conversation transcripts, separate
// from long-term memory.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/becomeliminal/nim-recall/core"
)

// Store persists conversation messages by conversation ID.
type Store interface {
	// Append adds messages to the end of a conversation.
	Append(ctx context.Context, conversationID string, msgs ...core.Message) error

	// Recent returns up to limit trailing messages, oldest first.
	// A limit <= 0 returns the whole conversation.
	Recent(ctx context.Context, conversationID string, limit int) ([]core.Message, error)

	// Clear removes a conversation.
	Clear(ctx context.Context, conversationID string) error

	Close() error
}

// InMemoryStore is a process-local Store.
type InMemoryStore struct {
	mu    sync.RWMutex
	convs map[string][]core.Message
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{convs: make(map[string][]core.Message)}
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, conversationID string, msgs ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		s.convs[conversationID] = append(s.convs[conversationID], m)
	}
	return nil
}

// Recent implements Store.
func (s *InMemoryStore) Recent(_ context.Context, conversationID string, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.convs[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]core.Message(nil), msgs...), nil
}

// Clear implements Store.
func (s *InMemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
	return nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	return nil
}
