package domain

import "time"

// Role is a participant's role inside a chat.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Participant links a user to a chat.
type Participant struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Chat is a one-to-one or group conversation.
type Chat struct {
	ID           string        `json:"id"`
	IsGroup      bool          `json:"isGroup"`
	Name         string        `json:"name,omitempty"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ChatSummary is the list view of a chat: the chat plus its latest message.
type ChatSummary struct {
	Chat
	LastMessage *Message `json:"lastMessage"`
}

// NewChat describes a chat to be created. The creator is always added as an
// admin participant.
type NewChat struct {
	CreatorID      string   `json:"-"`
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,required"`
	IsGroup        bool     `json:"isGroup"`
	GroupName      string   `json:"groupName" validate:"required_if=IsGroup true"`
}
