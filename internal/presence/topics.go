package presence

import (
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

// Status is a user's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Transition is the backbone payload for an online/offline change. ChatIDs
// are resolved by the publishing instance so receivers need no store access.
type Transition struct {
	UserID  string   `json:"userId"`
	Status  Status   `json:"status"`
	ChatIDs []string `json:"chatIds"`
}

// TypingNotice is the backbone payload for a typing start or stop. Event is
// the outbound socket event it becomes.
type TypingNotice struct {
	Event string `json:"event"`
	protocol.TypingEvent
}

var (
	// TopicTransition carries online/offline transitions between instances.
	TopicTransition = pubsub.NewEvent[Transition](pubsub.TopicPresence)
	// TopicTypingNotice carries typing start/stop between instances.
	TopicTypingNotice = pubsub.NewEvent[TypingNotice](pubsub.TopicTyping)
)
