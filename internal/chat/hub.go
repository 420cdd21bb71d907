package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/terra-clan/training-engine/internal/config"
)

// Hub owns one live Session per training and tears a session down when
// its last subscriber leaves.
type Hub struct {
	store  MessageStore
	typing TypingStore
	cfg    config.ChatConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub creates a chat hub
func NewHub(store MessageStore, typing TypingStore, cfg config.ChatConfig) *Hub {
	return &Hub{
		store:    store,
		typing:   typing,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Session returns the live session for a training, creating and loading
// it on first use. A session whose initial load failed is not cached, so
// the next caller retries from scratch.
func (h *Hub) Session(ctx context.Context, trainingID string) (*Session, error) {
	h.mu.Lock()
	if s, ok := h.sessions[trainingID]; ok {
		h.mu.Unlock()
		return s, nil
	}
	h.mu.Unlock()

	s := newSession(trainingID, h.store, h.typing, h.cfg.InitialPageSize, h.cfg.OlderPageSize)
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Another goroutine may have won the race; keep the cached one
	if existing, ok := h.sessions[trainingID]; ok {
		return existing, nil
	}

	h.sessions[trainingID] = s
	slog.Info("chat session started", "training_id", trainingID)
	return s, nil
}

// Subscribe returns the live session for a training along with a
// registered snapshot channel. Lookup and registration happen under the
// hub lock, so a concurrent Release cannot retire the session between
// the two and strand the subscriber on an orphaned copy.
func (h *Hub) Subscribe(ctx context.Context, trainingID string) (*Session, <-chan Snapshot, func(), error) {
	for {
		h.mu.Lock()
		if s, ok := h.sessions[trainingID]; ok {
			ch, unsubscribe := s.attach()
			h.mu.Unlock()
			ch <- s.snapshot(ctx)
			return s, ch, unsubscribe, nil
		}
		h.mu.Unlock()

		s := newSession(trainingID, h.store, h.typing, h.cfg.InitialPageSize, h.cfg.OlderPageSize)
		if err := s.load(ctx); err != nil {
			return nil, nil, nil, err
		}

		h.mu.Lock()
		if _, ok := h.sessions[trainingID]; ok {
			// Lost the creation race; subscribe to the winner instead
			h.mu.Unlock()
			continue
		}
		h.sessions[trainingID] = s
		ch, unsubscribe := s.attach()
		h.mu.Unlock()

		slog.Info("chat session started", "training_id", trainingID)
		ch <- s.snapshot(ctx)
		return s, ch, unsubscribe, nil
	}
}

// Release drops the session if it no longer has subscribers
func (h *Hub) Release(ctx context.Context, trainingID string) {
	h.mu.Lock()
	s, ok := h.sessions[trainingID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if s.SubscriberCount() > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, trainingID)
	h.mu.Unlock()

	h.typing.ClearAll(ctx, trainingID)
	slog.Info("chat session closed", "training_id", trainingID)
}

// ActiveSessions returns the number of live sessions
func (h *Hub) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
