package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/nfrund/huddle/internal/domain"
)

const (
	chatTable    = "chat"
	messageTable = "message"

	messageFields = "record::id(id) AS id, chat_id, sender_id, content, message_type, created_at"
	chatFields    = "record::id(id) AS id, is_group, name, participants, created_at, updated_at"
)

var _ domain.Store = (*SurrealStore)(nil)

type messageRow struct {
	ID          string                       `json:"id"`
	ChatID      string                       `json:"chat_id"`
	SenderID    string                       `json:"sender_id"`
	Content     string                       `json:"content"`
	MessageType string                       `json:"message_type"`
	CreatedAt   surrealmodels.CustomDateTime `json:"created_at"`
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:          r.ID,
		ChatID:      r.ChatID,
		SenderID:    r.SenderID,
		Content:     r.Content,
		MessageType: domain.NormalizeKind(r.MessageType),
		TimeStamp:   r.CreatedAt.Time,
		CreatedAt:   r.CreatedAt.Time,
	}
}

type participantRow struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type chatRow struct {
	ID           string                       `json:"id"`
	IsGroup      bool                         `json:"is_group"`
	Name         string                       `json:"name"`
	Participants []participantRow             `json:"participants"`
	CreatedAt    surrealmodels.CustomDateTime `json:"created_at"`
	UpdatedAt    surrealmodels.CustomDateTime `json:"updated_at"`
}

func (r chatRow) toDomain() *domain.Chat {
	return &domain.Chat{
		ID:      r.ID,
		IsGroup: r.IsGroup,
		Name:    r.Name,
		Participants: lo.Map(r.Participants, func(p participantRow, _ int) domain.Participant {
			return domain.Participant{UserID: p.UserID, Role: domain.Role(p.Role)}
		}),
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

// SurrealStore implements domain.Store on SurrealDB. Participants are embedded
// in the chat record; messages reference their chat by plain id string.
type SurrealStore struct {
	conn *Connection
	now  func() time.Time
}

// NewSurrealStore creates a store on a managed connection.
func NewSurrealStore(conn *Connection) *SurrealStore {
	return &SurrealStore{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema defines the indexes the queries rely on.
func (s *SurrealStore) EnsureSchema(ctx context.Context) error {
	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		return Execute(ctx, db, `
			DEFINE INDEX IF NOT EXISTS message_chat_created ON message FIELDS chat_id, created_at;
			DEFINE INDEX IF NOT EXISTS chat_participants ON chat FIELDS participants.*.user_id;
		`, nil)
	})
}

func (s *SurrealStore) CreateMessage(ctx context.Context, chatID, senderID, content string, kind domain.ContentKind) (domain.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return domain.Message{}, err
	}

	now := s.now()
	msg := domain.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		MessageType: kind,
		TimeStamp:   now,
		CreatedAt:   now,
	}

	query := `
		BEGIN TRANSACTION;
		CREATE type::thing($tb, $id) CONTENT $data;
		UPDATE type::thing($chat_tb, $chat) SET updated_at = $now;
		COMMIT TRANSACTION;
	`
	params := map[string]any{
		"tb":      messageTable,
		"id":      msg.ID,
		"chat_tb": chatTable,
		"chat":    chatID,
		"now":     surrealmodels.CustomDateTime{Time: now},
		"data": map[string]any{
			"chat_id":      chatID,
			"sender_id":    senderID,
			"content":      content,
			"message_type": string(kind),
			"created_at":   surrealmodels.CustomDateTime{Time: now},
		},
	}

	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		return Execute(ctx, db, query, params)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

func (s *SurrealStore) ListChatsForUser(ctx context.Context, userID string) ([]string, error) {
	query := "SELECT VALUE record::id(id) FROM chat WHERE participants.user_id CONTAINS $user"

	var ids []string
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		ids, err = Query[string](ctx, db, query, map[string]any{"user": userID})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chats for user: %w", err)
	}
	return ids, nil
}

func (s *SurrealStore) FindChatParticipants(ctx context.Context, chatID string) ([]string, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return lo.Map(chat.Participants, func(p domain.Participant, _ int) string { return p.UserID }), nil
}

func (s *SurrealStore) ListMessages(ctx context.Context, chatID, cursor string, pageSize int) (domain.Page, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return domain.Page{}, err
	}

	params := map[string]any{"chat": chatID, "limit": pageSize + 1}
	where := "chat_id = $chat"

	var rows []messageRow
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		if cursor != "" {
			at, err := QueryOne[messageRow](ctx, db,
				"SELECT "+messageFields+" FROM type::thing($tb, $cursor) WHERE chat_id = $chat",
				map[string]any{"tb": messageTable, "cursor": cursor, "chat": chatID})
			if err != nil {
				return err
			}
			if at == nil {
				rows = nil
				return nil
			}
			where += " AND (created_at < $before OR (created_at = $before AND record::id(id) < $cursor))"
			params["before"] = at.CreatedAt
			params["cursor"] = cursor
		}

		var err error
		rows, err = Query[messageRow](ctx, db,
			"SELECT "+messageFields+" FROM message WHERE "+where+" ORDER BY created_at DESC, id DESC LIMIT $limit",
			params)
		return err
	})
	if err != nil {
		return domain.Page{}, fmt.Errorf("failed to list messages: %w", err)
	}

	return pageFrom(lo.Map(rows, func(r messageRow, _ int) domain.Message { return r.toDomain() }), pageSize), nil
}

func (s *SurrealStore) CreateChat(ctx context.Context, nc domain.NewChat) (*domain.Chat, error) {
	now := s.now()
	chat := &domain.Chat{
		ID:           uuid.NewString(),
		IsGroup:      nc.IsGroup,
		Name:         nc.GroupName,
		Participants: participantsFor(nc),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	params := map[string]any{
		"tb": chatTable,
		"id": chat.ID,
		"data": map[string]any{
			"is_group": chat.IsGroup,
			"name":     chat.Name,
			"participants": lo.Map(chat.Participants, func(p domain.Participant, _ int) map[string]any {
				return map[string]any{"user_id": p.UserID, "role": string(p.Role)}
			}),
			"created_at": surrealmodels.CustomDateTime{Time: now},
			"updated_at": surrealmodels.CustomDateTime{Time: now},
		},
	}

	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		return Execute(ctx, db, "CREATE type::thing($tb, $id) CONTENT $data", params)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

func (s *SurrealStore) FindDirectChat(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	query := "SELECT " + chatFields + ` FROM chat
		WHERE is_group = false
		AND array::len(participants) = 2
		AND participants.user_id CONTAINS $a
		AND participants.user_id CONTAINS $b`

	return s.queryChat(ctx, query, map[string]any{"a": userA, "b": userB})
}

func (s *SurrealStore) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	return s.queryChat(ctx, "SELECT "+chatFields+" FROM type::thing($tb, $id)",
		map[string]any{"tb": chatTable, "id": chatID})
}

func (s *SurrealStore) queryChat(ctx context.Context, query string, params map[string]any) (*domain.Chat, error) {
	var row *chatRow
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		row, err = QueryOne[chatRow](ctx, db, query, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	return row.toDomain(), nil
}

func (s *SurrealStore) ListChatSummaries(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	type summaryRow struct {
		chatRow
		LastMessage *messageRow `json:"last_message"`
	}

	query := "SELECT " + chatFields + `,
		(SELECT ` + messageFields + ` FROM message
			WHERE chat_id = record::id($parent.id)
			ORDER BY created_at DESC LIMIT 1)[0] AS last_message
		FROM chat WHERE participants.user_id CONTAINS $user
		ORDER BY updated_at DESC`

	var rows []summaryRow
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = Query[summaryRow](ctx, db, query, map[string]any{"user": userID})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chat summaries: %w", err)
	}

	return lo.Map(rows, func(r summaryRow, _ int) domain.ChatSummary {
		summary := domain.ChatSummary{Chat: *r.chatRow.toDomain()}
		if r.LastMessage != nil {
			last := r.LastMessage.toDomain()
			summary.LastMessage = &last
		}
		return summary
	}), nil
}

func (s *SurrealStore) DeleteChat(ctx context.Context, chatID string) error {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return err
	}

	query := `
		BEGIN TRANSACTION;
		DELETE message WHERE chat_id = $id;
		DELETE type::thing($tb, $id);
		COMMIT TRANSACTION;
	`
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		return Execute(ctx, db, query, map[string]any{"tb": chatTable, "id": chatID})
	})
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

func (s *SurrealStore) DeleteMessage(ctx context.Context, messageID string) error {
	var deleted []map[string]any
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		deleted, err = Query[map[string]any](ctx, db, "DELETE type::thing($tb, $id) RETURN BEFORE",
			map[string]any{"tb": messageTable, "id": messageID})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if len(deleted) == 0 {
		return domain.ErrNotFound
	}
	return nil
}
