package domain

import (
	"context"
	"io"
)

// Store is the persistence contract the realtime layer and the REST handlers
// depend on. It lives in the domain because it's a requirement OF the domain,
// not of the database implementation.
type Store interface {
	// CreateMessage persists a message and assigns its id and server timestamps.
	CreateMessage(ctx context.Context, chatID, senderID, content string, kind ContentKind) (Message, error)
	// ListChatsForUser returns the ids of every chat the user participates in.
	ListChatsForUser(ctx context.Context, userID string) ([]string, error)
	// FindChatParticipants returns the user ids of a chat's participants.
	FindChatParticipants(ctx context.Context, chatID string) ([]string, error)
	// ListMessages returns one page of a chat's history, newest page first.
	// An empty cursor starts at the newest message.
	ListMessages(ctx context.Context, chatID, cursor string, pageSize int) (Page, error)

	CreateChat(ctx context.Context, chat NewChat) (*Chat, error)
	// FindDirectChat returns the existing one-to-one chat between two users, or ErrNotFound.
	FindDirectChat(ctx context.Context, userA, userB string) (*Chat, error)
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	ListChatSummaries(ctx context.Context, userID string) ([]ChatSummary, error)
	DeleteChat(ctx context.Context, chatID string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Uploader stores binary payloads and returns a URL clients can fetch them from.
type Uploader interface {
	Upload(ctx context.Context, folder string, content io.Reader) (string, error)
}
