package ws

import "hichat/internal/domain"

// Client -> server event types.
const (
	EventJoinChat    = "join chat"
	EventChatMessage = "chat message"
)

// Server -> client event types. "chat message" flows both ways.
const (
	EventChatCreated  = "chat created"
	EventUnreadUpdate = "unread update"
	EventPresence     = "presence"
)

// WebRTC signaling event types, relayed verbatim between two peers.
const (
	EventCallOffer        = "webrtc-offer"
	EventCallAnswer       = "webrtc-answer"
	EventCallICECandidate = "webrtc-ice-candidate"
	EventCallReject       = "webrtc-call-reject"
	EventCallEnd          = "webrtc-call-end"
	EventCallMuteToggle   = "webrtc-toggle-mute"
)

// PresenceEvent announces an online/offline transition to everyone.
type PresenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

func NewPresenceEvent(userID string, online bool) PresenceEvent {
	return PresenceEvent{Type: EventPresence, UserID: userID, Online: online}
}

// MessageEvent carries a full message record to chat room subscribers.
type MessageEvent struct {
	Type string `json:"type"`
	domain.Message
}

func NewMessageEvent(m *domain.Message) MessageEvent {
	return MessageEvent{Type: EventChatMessage, Message: *m}
}

// UnreadEvent tells one member their new unread count for a chat.
type UnreadEvent struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	Unread int    `json:"unread"`
}

func NewUnreadEvent(chatID string, unread int) UnreadEvent {
	return UnreadEvent{Type: EventUnreadUpdate, ChatID: chatID, Unread: unread}
}

// ChatCreatedEvent notifies the other party that a chat now exists.
type ChatCreatedEvent struct {
	Type      string               `json:"type"`
	ID        string               `json:"id"`
	OtherUser domain.PublicProfile `json:"other_user"`
}

func NewChatCreatedEvent(chatID string, otherUser domain.PublicProfile) ChatCreatedEvent {
	return ChatCreatedEvent{Type: EventChatCreated, ID: chatID, OtherUser: otherUser}
}
