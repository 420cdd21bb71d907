package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/training-engine/internal/chat"
	"github.com/terra-clan/training-engine/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatFrame is the wire format on the chat WebSocket, both directions.
// Client -> server types: send, load_more, typing, react, pin, read.
// Server -> client types: snapshot, error.
type ChatFrame struct {
	Type string `json:"type"`

	// send
	Text       string             `json:"text,omitempty"`
	Attachment *models.Attachment `json:"attachment,omitempty"`
	ReplyToID  string             `json:"reply_to_id,omitempty"`

	// react / pin / read
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Pinned    bool   `json:"pinned,omitempty"`

	// typing
	IsTyping bool `json:"is_typing,omitempty"`

	// server -> client
	Snapshot *chat.Snapshot `json:"snapshot,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// chatConn wraps a websocket connection with a write lock; snapshots and
// error frames come from different goroutines
type chatConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *chatConn) send(frame ChatFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("failed to marshal chat frame", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send chat frame", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	trainingID := chi.URLParam(r, "id")
	user := UserFromContext(r.Context())

	if _, err := s.repo.GetFormation(r.Context(), trainingID); err != nil {
		http.Error(w, "formation not found", http.StatusNotFound)
		return
	}

	// Subscribing through the hub keeps the session lookup and the
	// subscriber registration atomic with respect to teardown.
	session, snapshots, unsubscribe, err := s.chatHub.Subscribe(r.Context(), trainingID)
	if err != nil {
		slog.Error("failed to open chat session", "training_id", trainingID, "error", err)
		http.Error(w, "chat unavailable", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		unsubscribe()
		s.chatHub.Release(context.Background(), trainingID)
	}()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("chat websocket connected", "training_id", trainingID, "user_id", user.ID)

	cc := &chatConn{conn: conn}

	// The connection outlives the HTTP request context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Session snapshots -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				if err := cc.send(ChatFrame{Type: "snapshot", Snapshot: &snap}); err != nil {
					return
				}
			}
		}
	}()

	// WebSocket -> session operations
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, data, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						slog.Debug("websocket read error", "error", err)
					}
					return
				}

				var frame ChatFrame
				if err := json.Unmarshal(data, &frame); err != nil {
					slog.Debug("invalid chat frame", "error", err)
					continue
				}

				s.dispatchChatFrame(ctx, cc, session, user, frame)
			}
		}
	}()

	wg.Wait()

	// Mark the user as no longer typing on disconnect
	session.SetTyping(context.Background(), user.ID, false)

	slog.Info("chat websocket disconnected", "training_id", trainingID, "user_id", user.ID)
}

// dispatchChatFrame applies one client frame to the session. Send and
// load failures go back as error frames so the client can keep its
// composed text and retry; best-effort operations never produce errors.
func (s *Server) dispatchChatFrame(ctx context.Context, cc *chatConn, session *chat.Session, user *models.User, frame ChatFrame) {
	switch frame.Type {
	case "send":
		_, err := session.Send(ctx, user, models.SendMessageRequest{
			Text:       frame.Text,
			Attachment: frame.Attachment,
			ReplyToID:  frame.ReplyToID,
		})
		if err != nil {
			switch {
			case errors.Is(err, chat.ErrEmptyMessage):
				cc.send(ChatFrame{Type: "error", Error: "message requires text or an attachment"})
			case errors.Is(err, chat.ErrSendInProgress):
				cc.send(ChatFrame{Type: "error", Error: "previous send still in progress"})
			default:
				slog.Error("failed to send chat message", "user_id", user.ID, "error", err)
				cc.send(ChatFrame{Type: "error", Error: "failed to send message, please retry"})
			}
		}

	case "load_more":
		if err := session.LoadMore(ctx); err != nil {
			slog.Error("failed to load older messages", "user_id", user.ID, "error", err)
			cc.send(ChatFrame{Type: "error", Error: "failed to load older messages"})
		}

	case "typing":
		session.SetTyping(ctx, user.ID, frame.IsTyping)

	case "react":
		if frame.MessageID == "" || frame.Emoji == "" {
			return
		}
		session.ToggleReaction(ctx, user.ID, frame.MessageID, frame.Emoji)

	case "pin":
		if frame.MessageID == "" {
			return
		}
		if err := session.TogglePin(ctx, user, frame.MessageID, frame.Pinned); err != nil {
			cc.send(ChatFrame{Type: "error", Error: "only trainers may pin messages"})
		}

	case "read":
		if frame.MessageID == "" {
			return
		}
		session.MarkRead(ctx, user.ID, frame.MessageID)

	default:
		slog.Debug("unknown chat frame type", "type", frame.Type)
	}
}
