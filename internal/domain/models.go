package domain

import (
	"sort"
	"strings"
	"time"
)

// User represents an application user. Online status is intentionally absent:
// it is derived from the connection registry, never persisted.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	Avatar         string    `json:"avatar"`
	Bio            string    `json:"bio"`
	CreatedAt      time.Time `json:"created_at"`
}

// PublicProfile is the user view exposed to other users.
type PublicProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Bio      string `json:"bio,omitempty"`
	Online   bool   `json:"online"`
}

// PublicProfileOf builds the public view of a user with the given presence.
func PublicProfileOf(u *User, online bool) PublicProfile {
	return PublicProfile{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		Bio:      u.Bio,
		Online:   online,
	}
}

// Chat is a direct conversation between exactly two users. Unread maps each
// member id to its unread counter.
type Chat struct {
	ID        string         `json:"id"`
	Members   []string       `json:"members"`
	Unread    map[string]int `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

// HasMember reports whether userID is one of the chat's members.
func (c *Chat) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// OtherMember returns the member id that is not userID. Empty when userID is
// not a member.
func (c *Chat) OtherMember(userID string) string {
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}

// ChatPairKey returns the canonical key for an unordered member pair. Both
// orderings of the same two ids map to the same key; the chat store keeps this
// key unique so at most one chat can exist per pair.
func ChatPairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// ChatSummary is the per-user view of a chat as served in chat lists.
type ChatSummary struct {
	ID          string        `json:"id"`
	OtherUser   PublicProfile `json:"other_user"`
	LastMessage *LastMessage  `json:"last_message"`
	Unread      int           `json:"unread"`
}

// LastMessage is the chat-list preview of the most recent message.
type LastMessage struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ReplyRef is an immutable snapshot of the message a reply refers to, taken
// at send time.
type ReplyRef struct {
	MessageID      string `json:"message_id"`
	Text           string `json:"text"`
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
}

// Message is a single chat message. Sender name and avatar are snapshots from
// send time; messages are never mutated after creation.
type Message struct {
	ID             string    `json:"id"`
	ChatID         string    `json:"chat_id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	SenderAvatar   string    `json:"sender_avatar"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	ReplyTo        *ReplyRef `json:"reply_to,omitempty"`
}
