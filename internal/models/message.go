package models

import "time"

// AttachmentType enumerates supported message attachment kinds
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
	AttachmentAudio AttachmentType = "audio"
)

// Attachment points at an uploaded blob
type Attachment struct {
	URL  string         `json:"url"`
	Type AttachmentType `json:"type"`
}

// Reaction is keyed by (user, emoji) per message, so toggling off is a
// key-based delete rather than a remove-by-exact-value on a list.
type Reaction struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a chat message scoped to a training. The sender fields are a
// denormalized snapshot taken at send time. Messages are append-mostly:
// pin state, read receipts and reactions mutate in place, nothing is deleted.
type Message struct {
	ID          string      `json:"id"`
	TrainingID  string      `json:"training_id"`
	SenderID    string      `json:"sender_id"`
	SenderName  string      `json:"sender_name"`
	SenderRole  Role        `json:"sender_role"`
	SenderPhoto string      `json:"sender_photo,omitempty"`
	Text        string      `json:"text,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	ReplyToID   string      `json:"reply_to_id,omitempty"`
	Pinned      bool        `json:"pinned"`
	ReadBy      []string    `json:"read_by,omitempty"`
	Reactions   []Reaction  `json:"reactions,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// HasReaction reports whether the user already reacted with this emoji
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// ReadByUser reports whether the user is in the read set
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// SendMessageRequest represents a message send. Text or Attachment required.
type SendMessageRequest struct {
	Text       string      `json:"text,omitempty"`
	ReplyToID  string      `json:"reply_to_id,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// MessagePage is one page of chat history, newest first
type MessagePage struct {
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
}

// TypingUser is one entry in the currently-typing view
type TypingUser struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}
