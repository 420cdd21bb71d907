package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/terra-clan/training-engine/internal/config"
	"github.com/terra-clan/training-engine/internal/models"
)

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		InitialPageSize: 50,
		OlderPageSize:   20,
		TypingTTL:       5 * time.Second,
		TypingThrottle:  3 * time.Second,
	}
}

// fakeStore keeps messages in memory, newest first
type fakeStore struct {
	mu         sync.Mutex
	messages   []*models.Message
	failCreate bool
}

func (f *fakeStore) CreateMessage(ctx context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errors.New("storage down")
	}
	f.messages = append(f.messages, m)
	f.sortLocked()
	return nil
}

func (f *fakeStore) sortLocked() {
	sort.Slice(f.messages, func(i, j int) bool {
		return f.messages[i].CreatedAt.After(f.messages[j].CreatedAt)
	})
}

func (f *fakeStore) ListMessages(ctx context.Context, trainingID string, limit int) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, m := range f.messages {
		if m.TrainingID != trainingID {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListMessagesBefore(ctx context.Context, trainingID string, before time.Time, limit int) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, m := range f.messages {
		if m.TrainingID != trainingID || !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) SetMessagePinned(ctx context.Context, id string, pinned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			m.Pinned = pinned
			return nil
		}
	}
	return errors.New("message not found")
}

func (f *fakeStore) AddMessageRead(ctx context.Context, messageID, userID string) error {
	return nil
}

func (f *fakeStore) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	return nil
}

func (f *fakeStore) DeleteReaction(ctx context.Context, messageID, userID, emoji string) error {
	return nil
}

// gatedStore blocks the first call of one store operation so a test can
// hold that write in flight while it drives the session from the outside
type gatedStore struct {
	*fakeStore
	op      string // "create" or "add_reaction"
	entered chan struct{}
	release chan struct{}
	first   sync.Once
}

func newGatedStore(op string) *gatedStore {
	return &gatedStore{
		fakeStore: &fakeStore{},
		op:        op,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (g *gatedStore) gate(op string) {
	if op != g.op {
		return
	}
	gated := false
	g.first.Do(func() { gated = true })
	if gated {
		close(g.entered)
		<-g.release
	}
}

func (g *gatedStore) CreateMessage(ctx context.Context, m *models.Message) error {
	g.gate("create")
	return g.fakeStore.CreateMessage(ctx, m)
}

func (g *gatedStore) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	g.gate("add_reaction")
	return g.fakeStore.AddReaction(ctx, messageID, userID, emoji)
}

// fakeTyping is an in-memory TypingStore
type fakeTyping struct {
	mu     sync.Mutex
	typing map[string]bool // trainingID:userID
}

func newFakeTyping() *fakeTyping {
	return &fakeTyping{typing: make(map[string]bool)}
}

func (f *fakeTyping) SetTyping(ctx context.Context, trainingID, userID string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := trainingID + ":" + userID
	if isTyping {
		f.typing[key] = true
	} else {
		delete(f.typing, key)
	}
	return nil
}

func (f *fakeTyping) TypingUsers(ctx context.Context, trainingID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	prefix := trainingID + ":"
	for key := range f.typing {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, key[len(prefix):])
		}
	}
	return out, nil
}

func (f *fakeTyping) ClearAll(ctx context.Context, trainingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := trainingID + ":"
	for key := range f.typing {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(f.typing, key)
		}
	}
}

func seedMessages(store *fakeStore, trainingID string, count int, base time.Time) {
	for i := 0; i < count; i++ {
		store.messages = append(store.messages, &models.Message{
			ID:         fmt.Sprintf("msg-%03d", i),
			TrainingID: trainingID,
			SenderID:   "sender",
			SenderName: "Sender",
			Text:       fmt.Sprintf("message %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
	store.sortLocked()
}

func testUser(id string, role models.Role) *models.User {
	return &models.User{ID: id, Name: "User " + id, Role: role}
}

func TestSessionInitialLoad(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	seedMessages(store, "t1", 75, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	snap := s.Snapshot(ctx)
	if len(snap.Messages) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(snap.Messages))
	}
	if !snap.HasMore {
		t.Error("expected has_more after a full initial page")
	}

	// Chronological: first shown message is the oldest loaded one
	if snap.Messages[0].CreatedAt.After(snap.Messages[len(snap.Messages)-1].CreatedAt) {
		t.Error("snapshot messages are not in chronological order")
	}
}

func TestSessionInitialLoadShortPage(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	seedMessages(store, "t1", 10, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	snap := s.Snapshot(ctx)
	if len(snap.Messages) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(snap.Messages))
	}
	if snap.HasMore {
		t.Error("short initial page must not report has_more")
	}
}

func TestSessionLoadMore(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	seedMessages(store, "t1", 75, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}
	if got := len(s.Messages()); got != 70 {
		t.Fatalf("expected 70 messages after one older page, got %d", got)
	}
	if !s.HasMore() {
		t.Error("expected has_more after a full older page")
	}

	// Only 5 remain; the short page flips has_more off
	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}
	if got := len(s.Messages()); got != 75 {
		t.Fatalf("expected all 75 messages, got %d", got)
	}
	if s.HasMore() {
		t.Error("has_more must be false once history is exhausted")
	}

	// Exhausted: further calls are silent no-ops
	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore on exhausted history failed: %v", err)
	}
	if got := len(s.Messages()); got != 75 {
		t.Fatalf("no-op LoadMore changed message count to %d", got)
	}
}

func TestSessionLoadMoreDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	seedMessages(store, "t1", 30, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	s := newSession("t1", store, newFakeTyping(), 20, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}

	seen := make(map[string]bool)
	for _, m := range s.Messages() {
		if seen[m.ID] {
			t.Fatalf("duplicate message %s after pagination", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestSessionSend(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	typing := newFakeTyping()

	s := newSession("t1", store, typing, 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	sender := testUser("u1", models.RoleLearner)
	typing.SetTyping(ctx, "t1", "u1", true)

	msg, err := s.Send(ctx, sender, models.SendMessageRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.ID == "" {
		t.Error("sent message has no ID")
	}
	if !msg.ReadByUser("u1") {
		t.Error("sender must be in the read set of their own message")
	}

	// Sending clears the sender's typing indicator
	users, _ := typing.TypingUsers(ctx, "t1")
	if len(users) != 0 {
		t.Errorf("typing indicator not cleared on send: %v", users)
	}

	snap := s.Snapshot(ctx)
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "hello" {
		t.Fatalf("unexpected snapshot after send: %+v", snap.Messages)
	}
}

func TestSessionSendValidation(t *testing.T) {
	ctx := context.Background()
	s := newSession("t1", &fakeStore{}, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	_, err := s.Send(ctx, testUser("u1", models.RoleLearner), models.SendMessageRequest{})
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSessionSendFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{failCreate: true}
	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	_, err := s.Send(ctx, testUser("u1", models.RoleLearner), models.SendMessageRequest{Text: "hello"})
	if err == nil {
		t.Fatal("expected error when storage rejects the write")
	}

	// Nothing was added to the visible list; the caller retries with its
	// own retained input
	if got := len(s.Messages()); got != 0 {
		t.Errorf("failed send leaked %d messages into the session", got)
	}

	// A failed send must not leave the sending flag stuck
	store.failCreate = false
	if _, err := s.Send(ctx, testUser("u1", models.RoleLearner), models.SendMessageRequest{Text: "retry"}); err != nil {
		t.Fatalf("retry after failure was rejected: %v", err)
	}
}

func TestSessionSendConcurrentUsers(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore("create")
	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	aliceDone := make(chan error, 1)
	go func() {
		_, err := s.Send(ctx, testUser("alice", models.RoleLearner), models.SendMessageRequest{Text: "from alice"})
		aliceDone <- err
	}()
	<-store.entered

	// Another user's send proceeds while alice's write is in flight
	if _, err := s.Send(ctx, testUser("bob", models.RoleLearner), models.SendMessageRequest{Text: "from bob"}); err != nil {
		t.Fatalf("bob's send was rejected while only alice was sending: %v", err)
	}

	// Alice's own double submit is still rejected
	if _, err := s.Send(ctx, testUser("alice", models.RoleLearner), models.SendMessageRequest{Text: "again"}); !errors.Is(err, ErrSendInProgress) {
		t.Fatalf("expected ErrSendInProgress for alice's double submit, got %v", err)
	}

	close(store.release)
	if err := <-aliceDone; err != nil {
		t.Fatalf("alice's send failed: %v", err)
	}
	if got := len(s.Messages()); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
}

func TestSessionToggleReaction(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	msg, err := s.Send(ctx, testUser("u1", models.RoleLearner), models.SendMessageRequest{Text: "react to me"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	s.ToggleReaction(ctx, "u2", msg.ID, "👍")
	if !s.Messages()[0].HasReaction("u2", "👍") {
		t.Fatal("reaction was not added")
	}

	// Same emoji from another user coexists
	s.ToggleReaction(ctx, "u3", msg.ID, "👍")
	if len(s.Messages()[0].Reactions) != 2 {
		t.Fatalf("expected 2 reactions, got %d", len(s.Messages()[0].Reactions))
	}

	// Toggling again removes only the caller's reaction
	s.ToggleReaction(ctx, "u2", msg.ID, "👍")
	m := s.Messages()[0]
	if m.HasReaction("u2", "👍") {
		t.Error("reaction was not removed on second toggle")
	}
	if !m.HasReaction("u3", "👍") {
		t.Error("other user's identical reaction was removed")
	}
}

func TestSessionToggleReactionOverlappingAdds(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore("add_reaction")
	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	msg, err := s.Send(ctx, testUser("u1", models.RoleLearner), models.SendMessageRequest{Text: "react to me"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Hold the first toggle's store write in flight, then run a second
	// identical toggle to completion. Both observe no existing reaction;
	// only one may land in memory, matching the single stored row.
	done := make(chan struct{})
	go func() {
		s.ToggleReaction(ctx, "u2", msg.ID, "👍")
		close(done)
	}()
	<-store.entered

	s.ToggleReaction(ctx, "u2", msg.ID, "👍")
	close(store.release)
	<-done

	m := s.Messages()[0]
	if got := len(m.Reactions); got != 1 {
		t.Fatalf("expected 1 reaction after overlapping toggles, got %d", got)
	}
	if !m.HasReaction("u2", "👍") {
		t.Fatal("reaction missing after overlapping toggles")
	}
}

func TestSessionTogglePinAuthorization(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	msg, err := s.Send(ctx, testUser("u1", models.RoleLearner), models.SendMessageRequest{Text: "pin me"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := s.TogglePin(ctx, testUser("u1", models.RoleLearner), msg.ID, true); !errors.Is(err, ErrPinForbidden) {
		t.Fatalf("expected ErrPinForbidden for learner, got %v", err)
	}
	if s.Messages()[0].Pinned {
		t.Fatal("learner pin attempt mutated state")
	}

	if err := s.TogglePin(ctx, testUser("trainer", models.RoleTrainer), msg.ID, true); err != nil {
		t.Fatalf("trainer pin failed: %v", err)
	}
	snap := s.Snapshot(ctx)
	if len(snap.Pinned) != 1 {
		t.Fatalf("expected 1 pinned message, got %d", len(snap.Pinned))
	}

	if err := s.TogglePin(ctx, testUser("trainer", models.RoleTrainer), msg.ID, false); err != nil {
		t.Fatalf("trainer unpin failed: %v", err)
	}
	if len(s.Snapshot(ctx).Pinned) != 0 {
		t.Error("unpin did not clear the pinned list")
	}
}

func TestSessionUnreadCount(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	alice := testUser("alice", models.RoleLearner)
	bob := testUser("bob", models.RoleLearner)

	m1, _ := s.Send(ctx, alice, models.SendMessageRequest{Text: "one"})
	s.Send(ctx, alice, models.SendMessageRequest{Text: "two"})
	s.Send(ctx, bob, models.SendMessageRequest{Text: "three"})

	// Bob has not read alice's two messages; his own does not count
	if got := s.UnreadCount("bob"); got != 2 {
		t.Fatalf("expected 2 unread for bob, got %d", got)
	}

	s.MarkRead(ctx, "bob", m1.ID)
	if got := s.UnreadCount("bob"); got != 1 {
		t.Fatalf("expected 1 unread after marking one read, got %d", got)
	}

	// Marking read twice is a no-op
	s.MarkRead(ctx, "bob", m1.ID)
	if got := s.UnreadCount("bob"); got != 1 {
		t.Fatalf("repeated MarkRead changed unread count to %d", got)
	}
}

func TestSessionSubscribeDeliversSnapshot(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	seedMessages(store, "t1", 3, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	s := newSession("t1", store, newFakeTyping(), 50, 20)
	if err := s.load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	ch, unsubscribe := s.Subscribe(ctx)
	defer unsubscribe()

	select {
	case snap := <-ch:
		if len(snap.Messages) != 3 {
			t.Fatalf("initial snapshot has %d messages, want 3", len(snap.Messages))
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot delivered")
	}

	if _, err := s.Send(ctx, testUser("u1", models.RoleLearner), models.SendMessageRequest{Text: "new"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case snap := <-ch:
		if len(snap.Messages) != 4 {
			t.Fatalf("post-send snapshot has %d messages, want 4", len(snap.Messages))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after send")
	}

	unsubscribe()
	if got := s.SubscriberCount(); got != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", got)
	}
}

func TestHubSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	typing := newFakeTyping()

	hub := NewHub(store, typing, testChatConfig())

	s, err := hub.Session(ctx, "t1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	again, err := hub.Session(ctx, "t1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if s != again {
		t.Error("expected the cached session on second call")
	}
	if got := hub.ActiveSessions(); got != 1 {
		t.Errorf("expected 1 active session, got %d", got)
	}

	// With no subscribers, release tears the session down and clears
	// typing indicators
	typing.SetTyping(ctx, "t1", "u1", true)
	hub.Release(ctx, "t1")
	if got := hub.ActiveSessions(); got != 0 {
		t.Errorf("expected 0 active sessions after release, got %d", got)
	}
	users, _ := typing.TypingUsers(ctx, "t1")
	if len(users) != 0 {
		t.Errorf("typing indicators survived session teardown: %v", users)
	}
}

func TestHubReleaseKeepsSubscribedSession(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(&fakeStore{}, newFakeTyping(), testChatConfig())

	s, err := hub.Session(ctx, "t1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	_, unsubscribe := s.Subscribe(ctx)
	defer unsubscribe()

	hub.Release(ctx, "t1")
	if got := hub.ActiveSessions(); got != 1 {
		t.Errorf("release dropped a session that still has subscribers")
	}
}

func TestHubSubscribeSurvivesRelease(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(&fakeStore{}, newFakeTyping(), testChatConfig())

	sessA, snapshots, unsubA, err := hub.Subscribe(ctx, "t1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubA()
	<-snapshots // initial snapshot

	// A disconnect's release right after the subscription must not
	// retire the session: the subscriber is already registered.
	hub.Release(ctx, "t1")
	if got := hub.ActiveSessions(); got != 1 {
		t.Fatalf("release retired a session with a live subscriber")
	}

	sessB, chB, unsubB, err := hub.Subscribe(ctx, "t1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubB()
	<-chB
	if sessA != sessB {
		t.Fatal("second subscriber got a different session instance")
	}

	if _, err := sessB.Send(ctx, testUser("u9", models.RoleLearner), models.SendMessageRequest{Text: "still here"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The first subscriber sees the message sent after the release
	select {
	case snap := <-snapshots:
		if len(snap.Messages) != 1 || snap.Messages[0].Text != "still here" {
			t.Fatalf("unexpected snapshot for first subscriber: %+v", snap.Messages)
		}
	case <-time.After(time.Second):
		t.Fatal("first subscriber never saw the message sent after release")
	}
}
