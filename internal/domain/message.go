package domain

import "time"

// ContentKind describes how a message's content should be interpreted.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
	KindFile  ContentKind = "file"
)

// NormalizeKind maps an empty kind to text. Any other value is returned
// unchanged; requests are validated against the known kinds before they
// get here.
func NormalizeKind(kind string) ContentKind {
	if kind == "" {
		return KindText
	}
	return ContentKind(kind)
}

// Message is the durable chat message as returned by the Store.
type Message struct {
	ID          string      `json:"id"`
	ChatID      string      `json:"chatId"`
	SenderID    string      `json:"senderId"`
	Content     string      `json:"content"`
	MessageType ContentKind `json:"messageType"`
	TimeStamp   time.Time   `json:"timeStamp"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Envelope is the transient form of a message while it crosses the backbone.
// It is never stored.
type Envelope struct {
	Message Message `json:"message"`
	ChatID  string  `json:"chatId"`
	UserID  string  `json:"userId"`
}

// NewEnvelope wraps a persisted message for publication.
func NewEnvelope(msg Message) Envelope {
	return Envelope{
		Message: msg,
		ChatID:  msg.ChatID,
		UserID:  msg.SenderID,
	}
}

// Page is one slice of a chat's history. Messages are ordered oldest first;
// NextCursor is empty when there is nothing older to fetch.
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"nextCursor"`
}
