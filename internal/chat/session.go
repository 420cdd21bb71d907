package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/training-engine/internal/models"
)

// Errors for the strict (send) path. Best-effort mutations never return
// errors to callers; they log and move on.
var (
	ErrEmptyMessage   = errors.New("message requires text or an attachment")
	ErrSendInProgress = errors.New("a send is already in progress")
	ErrPinForbidden   = errors.New("only trainers may pin messages")
	ErrSessionFailed  = errors.New("chat session failed to load")
)

// TypingStore tracks ephemeral per-(training, user) typing indicators
type TypingStore interface {
	SetTyping(ctx context.Context, trainingID, userID string, isTyping bool) error
	TypingUsers(ctx context.Context, trainingID string) ([]string, error)
	ClearAll(ctx context.Context, trainingID string)
}

// MessageStore is the slice of persistence the chat coordinator needs
type MessageStore interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, trainingID string, limit int) ([]*models.Message, error)
	ListMessagesBefore(ctx context.Context, trainingID string, before time.Time, limit int) ([]*models.Message, error)
	SetMessagePinned(ctx context.Context, id string, pinned bool) error
	AddMessageRead(ctx context.Context, messageID, userID string) error
	AddReaction(ctx context.Context, messageID, userID, emoji string) error
	DeleteReaction(ctx context.Context, messageID, userID, emoji string) error
}

// Snapshot is what subscribers receive on every change
type Snapshot struct {
	Messages    []*models.Message `json:"messages"` // chronological
	Pinned      []*models.Message `json:"pinned"`
	HasMore     bool              `json:"has_more"`
	TypingUsers []string          `json:"typing_users"`
}

// Session coordinates the live message state of one training's chat.
// The in-memory list is ordered newest first; snapshots reverse it for
// chronological display. The cursor is the creation time of the oldest
// loaded message.
type Session struct {
	trainingID      string
	store           MessageStore
	typing          TypingStore
	initialPageSize int
	olderPageSize   int

	mu          sync.Mutex
	messages    []*models.Message
	cursor      time.Time
	hasMore     bool
	paginating  bool
	sending     map[string]bool // senders with a write in flight
	loadErr     error
	subscribers map[chan Snapshot]struct{}
}

func newSession(trainingID string, store MessageStore, typing TypingStore, initialPageSize, olderPageSize int) *Session {
	return &Session{
		trainingID:      trainingID,
		store:           store,
		typing:          typing,
		initialPageSize: initialPageSize,
		olderPageSize:   olderPageSize,
		sending:         make(map[string]bool),
		subscribers:     make(map[chan Snapshot]struct{}),
	}
}

// load fetches the initial page. A failure here is fatal for the session:
// subscribers get no message list until a fresh session is created.
func (s *Session) load(ctx context.Context) error {
	page, err := s.store.ListMessages(ctx, s.trainingID, s.initialPageSize)
	if err != nil {
		s.mu.Lock()
		s.loadErr = fmt.Errorf("%w: %v", ErrSessionFailed, err)
		s.mu.Unlock()
		return s.loadErr
	}

	s.mu.Lock()
	s.messages = page
	// A full page reports more history even when the store held exactly
	// this many messages; the next older fetch comes back empty and
	// clears the flag.
	s.hasMore = len(page) == s.initialPageSize
	if len(page) > 0 {
		s.cursor = page[len(page)-1].CreatedAt
	}
	s.mu.Unlock()

	return nil
}

// Err returns the fatal session error, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// LoadMore fetches the next older page and appends it behind the cursor.
// It is re-entrant safe: concurrent calls while a fetch is in flight, or
// calls with nothing left to fetch, are silent no-ops.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.paginating || !s.hasMore || s.cursor.IsZero() {
		s.mu.Unlock()
		return nil
	}
	s.paginating = true
	cursor := s.cursor
	s.mu.Unlock()

	older, err := s.store.ListMessagesBefore(ctx, s.trainingID, cursor, s.olderPageSize)

	s.mu.Lock()
	s.paginating = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to load older messages: %w", err)
	}

	seen := make(map[string]bool, len(s.messages))
	for _, m := range s.messages {
		seen[m.ID] = true
	}
	for _, m := range older {
		if seen[m.ID] {
			continue
		}
		s.messages = append(s.messages, m)
	}

	s.hasMore = len(older) == s.olderPageSize
	if len(s.messages) > 0 {
		s.cursor = s.messages[len(s.messages)-1].CreatedAt
	}
	s.mu.Unlock()

	s.broadcast(ctx)
	return nil
}

// Send validates, persists and publishes a message. A sender's
// overlapping sends are rejected so a double submit cannot duplicate the
// message, while different users send independently; the caller keeps
// its input text and may retry on error. The sender's typing indicator
// is cleared before the message goes out.
func (s *Session) Send(ctx context.Context, sender *models.User, req models.SendMessageRequest) (*models.Message, error) {
	if req.Text == "" && req.Attachment == nil {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.sending[sender.ID] {
		s.mu.Unlock()
		return nil, ErrSendInProgress
	}
	s.sending[sender.ID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sending, sender.ID)
		s.mu.Unlock()
	}()

	if err := s.typing.SetTyping(ctx, s.trainingID, sender.ID, false); err != nil {
		slog.Warn("failed to clear typing indicator before send", "user_id", sender.ID, "error", err)
	}

	msg := &models.Message{
		ID:          uuid.New().String(),
		TrainingID:  s.trainingID,
		SenderID:    sender.ID,
		SenderName:  sender.Name,
		SenderRole:  sender.Role,
		SenderPhoto: sender.PhotoURL,
		Text:        req.Text,
		Attachment:  req.Attachment,
		ReplyToID:   req.ReplyToID,
		ReadBy:      []string{sender.ID},
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	// The sender has trivially read their own message
	if err := s.store.AddMessageRead(ctx, msg.ID, sender.ID); err != nil {
		slog.Warn("failed to record sender read receipt", "message_id", msg.ID, "error", err)
	}

	s.mu.Lock()
	s.messages = append([]*models.Message{msg}, s.messages...)
	if s.cursor.IsZero() {
		s.cursor = msg.CreatedAt
	}
	s.mu.Unlock()

	s.broadcast(ctx)
	return msg, nil
}

// ToggleReaction adds the (user, emoji) reaction if absent, removes it if
// present. Best effort: storage failures are logged and the in-memory
// state is left unchanged.
func (s *Session) ToggleReaction(ctx context.Context, userID, messageID, emoji string) {
	s.mu.Lock()
	msg := s.find(messageID)
	if msg == nil {
		s.mu.Unlock()
		slog.Debug("reaction toggle on unknown message", "message_id", messageID)
		return
	}
	had := msg.HasReaction(userID, emoji)
	s.mu.Unlock()

	if had {
		if err := s.store.DeleteReaction(ctx, messageID, userID, emoji); err != nil {
			slog.Warn("failed to remove reaction", "message_id", messageID, "error", err)
			return
		}
	} else {
		if err := s.store.AddReaction(ctx, messageID, userID, emoji); err != nil {
			slog.Warn("failed to add reaction", "message_id", messageID, "error", err)
			return
		}
	}

	s.mu.Lock()
	if msg = s.find(messageID); msg != nil {
		if had {
			kept := msg.Reactions[:0]
			for _, r := range msg.Reactions {
				if !(r.UserID == userID && r.Emoji == emoji) {
					kept = append(kept, r)
				}
			}
			msg.Reactions = kept
		} else if !msg.HasReaction(userID, emoji) {
			// Re-check under the lock: a concurrent toggle may have
			// added the reaction while the store call was in flight,
			// and storage keeps at most one row per (user, emoji).
			msg.Reactions = append(msg.Reactions, models.Reaction{
				UserID:    userID,
				Emoji:     emoji,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
	s.mu.Unlock()

	s.broadcast(ctx)
}

// TogglePin flips a message's pin state. Authorization is enforced here,
// server side; storage failures are logged and swallowed.
func (s *Session) TogglePin(ctx context.Context, actor *models.User, messageID string, pinned bool) error {
	if !actor.IsTrainer() {
		return ErrPinForbidden
	}

	if err := s.store.SetMessagePinned(ctx, messageID, pinned); err != nil {
		slog.Warn("failed to set pin state", "message_id", messageID, "error", err)
		return nil
	}

	s.mu.Lock()
	if msg := s.find(messageID); msg != nil {
		msg.Pinned = pinned
	}
	s.mu.Unlock()

	s.broadcast(ctx)
	return nil
}

// MarkRead adds the user to the message's read set. Idempotent union;
// failures are logged and swallowed.
func (s *Session) MarkRead(ctx context.Context, userID, messageID string) {
	if err := s.store.AddMessageRead(ctx, messageID, userID); err != nil {
		slog.Warn("failed to record read receipt", "message_id", messageID, "error", err)
		return
	}

	changed := false
	s.mu.Lock()
	if msg := s.find(messageID); msg != nil && !msg.ReadByUser(userID) {
		msg.ReadBy = append(msg.ReadBy, userID)
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.broadcast(ctx)
	}
}

// SetTyping forwards the user's typing state to the tracker and notifies
// subscribers. Best effort.
func (s *Session) SetTyping(ctx context.Context, userID string, isTyping bool) {
	if err := s.typing.SetTyping(ctx, s.trainingID, userID, isTyping); err != nil {
		slog.Warn("failed to update typing indicator", "user_id", userID, "error", err)
		return
	}
	s.broadcast(ctx)
}

// UnreadCount derives the number of messages the user has not read,
// excluding their own
func (s *Session) UnreadCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, m := range s.messages {
		if m.SenderID != userID && !m.ReadByUser(userID) {
			count++
		}
	}
	return count
}

// Subscribe registers a snapshot channel and delivers the current state
// immediately. The returned function unsubscribes.
func (s *Session) Subscribe(ctx context.Context) (<-chan Snapshot, func()) {
	ch, unsubscribe := s.attach()
	ch <- s.snapshot(ctx)
	return ch, unsubscribe
}

// attach registers a subscriber channel without delivering the initial
// snapshot. The hub calls it under its own lock so registration is
// atomic with the session lookup.
func (s *Session) attach() (chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}
	return ch, unsubscribe
}

// SubscriberCount returns the number of live subscribers
func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Snapshot builds the current caller-facing view
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	return s.snapshot(ctx)
}

func (s *Session) snapshot(ctx context.Context) Snapshot {
	typingUsers, err := s.typing.TypingUsers(ctx, s.trainingID)
	if err != nil {
		slog.Warn("failed to read typing indicators", "training_id", s.trainingID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Reverse to chronological order for display
	chronological := make([]*models.Message, len(s.messages))
	for i, m := range s.messages {
		chronological[len(s.messages)-1-i] = m
	}

	var pinned []*models.Message
	for _, m := range chronological {
		if m.Pinned {
			pinned = append(pinned, m)
		}
	}

	return Snapshot{
		Messages:    chronological,
		Pinned:      pinned,
		HasMore:     s.hasMore,
		TypingUsers: typingUsers,
	}
}

// broadcast pushes the current snapshot to every subscriber. Slow
// subscribers are skipped rather than blocking the session.
func (s *Session) broadcast(ctx context.Context) {
	snap := s.snapshot(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			slog.Debug("dropping snapshot for slow subscriber", "training_id", s.trainingID)
		}
	}
}

// find returns the in-memory message by ID; callers must hold s.mu
func (s *Session) find(messageID string) *models.Message {
	for _, m := range s.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

// HasMore reports whether older pages remain
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Messages returns the chronological message list
func (s *Session) Messages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Message, len(s.messages))
	for i, m := range s.messages {
		out[len(s.messages)-1-i] = m
	}
	return out
}
