package domain

import "context"

// UserRepository defines persistence operations for users. Lookups return
// (nil, nil) when no row matches; email and username matching is
// case-insensitive.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SearchByUsername(ctx context.Context, query string, limit int) ([]*User, error)
	Update(ctx context.Context, u *User) error
}

// ChatRepository defines persistence operations for chats and their
// per-member unread counters.
type ChatRepository interface {
	Create(ctx context.Context, c *Chat) error
	GetByID(ctx context.Context, id string) (*Chat, error)
	// FindByPair looks up the chat for an unordered member pair.
	FindByPair(ctx context.Context, userA, userB string) (*Chat, error)
	ListForUser(ctx context.Context, userID string) ([]*Chat, error)
	ResetUnread(ctx context.Context, chatID, userID string) error
	// IncrementUnreadExcept bumps the unread counter of every member except
	// senderID by one and returns the resulting counters for all members.
	IncrementUnreadExcept(ctx context.Context, chatID, senderID string) (map[string]int, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListForChat returns messages ordered by timestamp, ties broken by
	// insertion order.
	ListForChat(ctx context.Context, chatID string) ([]*Message, error)
	LastForChat(ctx context.Context, chatID string) (*Message, error)
}
