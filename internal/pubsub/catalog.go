package pubsub

import "github.com/samber/lo"

// TopicInfo documents one backbone topic for operators.
type TopicInfo struct {
	Name        string `json:"name"`
	Pattern     string `json:"pattern,omitempty"`
	Payload     string `json:"payload"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

var catalog = []TopicInfo{
	{
		Name:        TopicChat,
		Payload:     "domain.Envelope",
		Description: "Every persisted message, delivered to the chat's room as chat-message",
		Example:     `{"message":{"id":"m1","chatId":"c1","senderId":"U1","content":"hi","messageType":"text"},"chatId":"c1","userId":"U1"}`,
	},
	{
		Name:        NotificationTopic("{chatId}"),
		Pattern:     NotificationPattern,
		Payload:     "domain.Envelope",
		Description: "Per-chat copy of each message, delivered as notification",
		Example:     NotificationTopic("c1"),
	},
	{
		Name:        TopicPresence,
		Payload:     "presence.Transition",
		Description: "Online/offline transitions with the chats they fan out to",
		Example:     `{"userId":"U1","status":"online","chatIds":["c1"]}`,
	},
	{
		Name:        TopicTyping,
		Payload:     "presence.TypingNotice",
		Description: "Typing started/stopped in a chat",
		Example:     `{"event":"user-typing","userId":"U1","chatId":"c1","username":"Uno"}`,
	},
}

// Catalog returns the topics this service publishes and subscribes to.
func Catalog() []TopicInfo {
	return append([]TopicInfo(nil), catalog...)
}

// LookupTopic finds a catalogued topic by name or by a concrete topic that
// matches its pattern.
func LookupTopic(name string) (TopicInfo, bool) {
	return lo.Find(catalog, func(t TopicInfo) bool {
		if t.Name == name {
			return true
		}
		if t.Pattern == NotificationPattern {
			_, ok := ChatIDFromNotificationTopic(name)
			return ok
		}
		return false
	})
}
