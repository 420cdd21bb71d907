package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TypingTracker stores per-(training, user) typing indicators in redis
// with a real expiry, so an indicator left behind by a crashed client
// disappears on its own instead of needing reader-side filtering.
//
// "Still typing" writes are throttled to one per throttle interval;
// transitions to not-typing always delete immediately so stop-typing
// stays responsive.
type TypingTracker struct {
	client   *redis.Client
	ttl      time.Duration
	throttle time.Duration

	mu        sync.Mutex
	lastWrite map[string]time.Time
}

// NewTypingTracker creates a typing tracker. ttl must exceed throttle or
// an indicator could expire between two throttled renewals.
func NewTypingTracker(client *redis.Client, ttl, throttle time.Duration) *TypingTracker {
	return &TypingTracker{
		client:    client,
		ttl:       ttl,
		throttle:  throttle,
		lastWrite: make(map[string]time.Time),
	}
}

func typingKey(trainingID, userID string) string {
	return fmt.Sprintf("typing:%s:%s", trainingID, userID)
}

// SetTyping records or clears the user's typing state
func (t *TypingTracker) SetTyping(ctx context.Context, trainingID, userID string, isTyping bool) error {
	key := typingKey(trainingID, userID)

	if !isTyping {
		t.mu.Lock()
		delete(t.lastWrite, key)
		t.mu.Unlock()

		if err := t.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear typing indicator: %w", err)
		}
		return nil
	}

	if !t.shouldWrite(key, time.Now()) {
		return nil
	}

	if err := t.client.Set(ctx, key, "1", t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set typing indicator: %w", err)
	}
	return nil
}

// shouldWrite applies the throttle window and records the write time
// when it passes
func (t *TypingTracker) shouldWrite(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastWrite[key]; ok && now.Sub(last) < t.throttle {
		return false
	}
	t.lastWrite[key] = now
	return true
}

// TypingUsers returns the IDs of users currently typing in the training.
// Expired keys are already gone, so no staleness check is needed here.
func (t *TypingTracker) TypingUsers(ctx context.Context, trainingID string) ([]string, error) {
	prefix := typingKey(trainingID, "")
	pattern := prefix + "*"

	var users []string
	var cursor uint64

	for {
		keys, nextCursor, err := t.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan typing indicators: %w", err)
		}

		for _, key := range keys {
			users = append(users, strings.TrimPrefix(key, prefix))
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return users, nil
}

// ClearAll removes every typing indicator for a training (session teardown)
func (t *TypingTracker) ClearAll(ctx context.Context, trainingID string) {
	pattern := typingKey(trainingID, "") + "*"

	var cursor uint64
	for {
		keys, nextCursor, err := t.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			slog.Warn("failed to scan typing indicators for cleanup", "training_id", trainingID, "error", err)
			return
		}

		if len(keys) > 0 {
			if err := t.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("failed to delete typing indicators", "training_id", trainingID, "error", err)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			return
		}
	}
}
