package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nfrund/huddle/internal/domain"
)

var _ domain.Store = (*MemoryStore)(nil)

// MemoryStore is a process-local domain.Store. It backs single-instance
// deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]*domain.Chat
	messages map[string][]domain.Message // chat id -> messages, oldest first
	byID     map[string]string           // message id -> chat id
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]*domain.Chat),
		messages: make(map[string][]domain.Message),
		byID:     make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateMessage(ctx context.Context, chatID, senderID, content string, kind domain.ContentKind) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return domain.Message{}, domain.ErrNotFound
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
	s.messages[chatID] = append(s.messages[chatID], msg)
	s.byID[msg.ID] = chatID
	s.chats[chatID].UpdatedAt = now
	return msg, nil
}

func (s *MemoryStore) ListChatsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, chat := range s.chats {
		if chat.HasParticipant(userID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) FindChatParticipants(ctx context.Context, chatID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return lo.Map(chat.Participants, func(p domain.Participant, _ int) string { return p.UserID }), nil
}

// ListMessages walks the chat newest first. The returned page is ordered
// oldest first and NextCursor is the id of its oldest message when older
// messages remain.
func (s *MemoryStore) ListMessages(ctx context.Context, chatID, cursor string, pageSize int) (domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[chatID]; !ok {
		return domain.Page{}, domain.ErrNotFound
	}

	newestFirst := lo.Reverse(append([]domain.Message{}, s.messages[chatID]...))

	start := 0
	if cursor != "" {
		idx := lo.IndexOf(lo.Map(newestFirst, func(m domain.Message, _ int) string { return m.ID }), cursor)
		if idx < 0 {
			return domain.Page{Messages: []domain.Message{}}, nil
		}
		start = idx + 1
	}

	return pageFrom(newestFirst[start:], pageSize), nil
}

// pageFrom builds a page from messages ordered newest first.
func pageFrom(newestFirst []domain.Message, pageSize int) domain.Page {
	take := newestFirst
	more := len(take) > pageSize
	if more {
		take = take[:pageSize]
	}

	page := domain.Page{Messages: lo.Reverse(append([]domain.Message{}, take...))}
	if more && len(take) > 0 {
		page.NextCursor = take[len(take)-1].ID
	}
	return page
}

func (s *MemoryStore) CreateChat(ctx context.Context, nc domain.NewChat) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	chat := &domain.Chat{
		ID:           uuid.NewString(),
		IsGroup:      nc.IsGroup,
		Name:         nc.GroupName,
		Participants: participantsFor(nc),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.chats[chat.ID] = chat
	return cloneChat(chat), nil
}

// participantsFor makes the creator the admin and everyone else a member,
// dropping duplicates.
func participantsFor(nc domain.NewChat) []domain.Participant {
	ids := lo.Uniq(append([]string{nc.CreatorID}, nc.ParticipantIDs...))
	ids = lo.Compact(ids)
	return lo.Map(ids, func(id string, _ int) domain.Participant {
		role := domain.RoleMember
		if id == nc.CreatorID {
			role = domain.RoleAdmin
		}
		return domain.Participant{UserID: id, Role: role}
	})
}

func (s *MemoryStore) FindDirectChat(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, chat := range s.chats {
		if chat.IsGroup || len(chat.Participants) != 2 {
			continue
		}
		if chat.HasParticipant(userA) && chat.HasParticipant(userB) {
			return cloneChat(chat), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneChat(chat), nil
}

// ListChatSummaries returns the user's chats, most recently active first.
func (s *MemoryStore) ListChatSummaries(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := []domain.ChatSummary{}
	for id, chat := range s.chats {
		if !chat.HasParticipant(userID) {
			continue
		}
		summary := domain.ChatSummary{Chat: *cloneChat(chat)}
		if msgs := s.messages[id]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return summaries, nil
}

func (s *MemoryStore) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return domain.ErrNotFound
	}
	for _, m := range s.messages[chatID] {
		delete(s.byID, m.ID)
	}
	delete(s.messages, chatID)
	delete(s.chats, chatID)
	return nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, ok := s.byID[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.byID, messageID)
	s.messages[chatID] = lo.Reject(s.messages[chatID], func(m domain.Message, _ int) bool {
		return m.ID == messageID
	})
	return nil
}

func cloneChat(c *domain.Chat) *domain.Chat {
	cp := *c
	cp.Participants = append([]domain.Participant(nil), c.Participants...)
	return &cp
}
