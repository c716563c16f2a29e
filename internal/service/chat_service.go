package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hichat/internal/domain"
)

// Presence reports whether a user currently has a live connection. The
// connection registry is the authoritative source; satisfied by *hub.Hub.
type Presence interface {
	IsOnline(userID string) bool
}

// ChatService owns direct chats, their unread counters, and message
// persistence.
type ChatService struct {
	users    domain.UserRepository
	chats    domain.ChatRepository
	messages domain.MessageRepository
	presence Presence

	MaxMessageLen int

	// pairMu guards pairLocks; each pair lock serializes chat creation for
	// one unordered member pair so concurrent first-contact requests cannot
	// create duplicate chats.
	pairMu    sync.Mutex
	pairLocks map[string]*sync.Mutex
}

func NewChatService(
	users domain.UserRepository,
	chats domain.ChatRepository,
	messages domain.MessageRepository,
	presence Presence,
	maxMessageLen int,
) *ChatService {
	return &ChatService{
		users:         users,
		chats:         chats,
		messages:      messages,
		presence:      presence,
		MaxMessageLen: maxMessageLen,
		pairLocks:     make(map[string]*sync.Mutex),
	}
}

func (s *ChatService) pairLock(key string) *sync.Mutex {
	s.pairMu.Lock()
	defer s.pairMu.Unlock()
	lock, ok := s.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[key] = lock
	}
	return lock
}

// FindOrCreateChat returns the chat between userID and otherID, creating it
// with zeroed unread counters if none exists. The boolean reports whether the
// chat was created by this call.
func (s *ChatService) FindOrCreateChat(ctx context.Context, userID, otherID string) (*domain.ChatSummary, bool, error) {
	if userID == otherID {
		return nil, false, fmt.Errorf("cannot chat with yourself: %w", domain.ErrInvalidInput)
	}

	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	if other == nil {
		return nil, false, fmt.Errorf("user %s: %w", otherID, domain.ErrNotFound)
	}

	lock := s.pairLock(domain.ChatPairKey(userID, otherID))
	lock.Lock()
	defer lock.Unlock()

	chat, err := s.chats.FindByPair(ctx, userID, otherID)
	if err != nil {
		return nil, false, fmt.Errorf("find chat: %w", err)
	}

	created := false
	if chat == nil {
		chat = &domain.Chat{
			ID:        uuid.NewString(),
			Members:   []string{userID, otherID},
			Unread:    map[string]int{userID: 0, otherID: 0},
			CreatedAt: time.Now().UTC(),
		}
		if err := s.chats.Create(ctx, chat); err != nil {
			return nil, false, fmt.Errorf("create chat: %w", err)
		}
		created = true
	}

	summary, err := s.summarize(ctx, chat, userID, other)
	if err != nil {
		return nil, false, err
	}
	return summary, created, nil
}

// ListChatsForUser returns a summary for every chat the user is a member of:
// the other member's public profile with live presence, the last message if
// any, and the caller's unread counter.
func (s *ChatService) ListChatsForUser(ctx context.Context, userID string) ([]*domain.ChatSummary, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	summaries := make([]*domain.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary, err := s.summarize(ctx, chat, userID, nil)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// MarkRead resets the member's unread counter to zero. Idempotent.
func (s *ChatService) MarkRead(ctx context.Context, chatID, userID string) error {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if chat == nil {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	if !chat.HasMember(userID) {
		return domain.ErrForbidden
	}
	return s.chats.ResetUnread(ctx, chatID, userID)
}

// ListMessages returns the chat's messages in order and resets the caller's
// unread counter, since fetching history is how a member catches up.
func (s *ChatService) ListMessages(ctx context.Context, chatID, userID string) ([]*domain.Message, error) {
	if err := s.MarkRead(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.messages.ListForChat(ctx, chatID)
}

// AppendMessage validates and persists a message, bumps every other member's
// unread counter, and returns the created record together with the
// post-increment unread counts keyed by member id.
func (s *ChatService) AppendMessage(ctx context.Context, chatID, senderID, text, replyToID string) (*domain.Message, map[string]int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, fmt.Errorf("empty message text: %w", domain.ErrInvalidInput)
	}
	if s.MaxMessageLen > 0 && len([]rune(text)) > s.MaxMessageLen {
		return nil, nil, fmt.Errorf("message exceeds %d characters: %w", s.MaxMessageLen, domain.ErrInvalidInput)
	}

	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	if !chat.HasMember(senderID) {
		return nil, nil, domain.ErrForbidden
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, nil, fmt.Errorf("get sender: %w", err)
	}
	if sender == nil {
		return nil, nil, fmt.Errorf("user %s: %w", senderID, domain.ErrNotFound)
	}

	var reply *domain.ReplyRef
	if replyToID != "" {
		target, err := s.messages.GetByID(ctx, replyToID)
		if err != nil {
			return nil, nil, fmt.Errorf("get reply target: %w", err)
		}
		if target == nil || target.ChatID != chatID {
			return nil, nil, fmt.Errorf("reply target %s: %w", replyToID, domain.ErrNotFound)
		}
		reply = &domain.ReplyRef{
			MessageID:      target.ID,
			Text:           target.Text,
			SenderID:       target.SenderID,
			SenderUsername: target.SenderUsername,
		}
	}

	msg := &domain.Message{
		ID:             uuid.NewString(),
		ChatID:         chatID,
		SenderID:       senderID,
		SenderUsername: sender.Username,
		SenderAvatar:   sender.Avatar,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
		ReplyTo:        reply,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("create message: %w", err)
	}

	counts, err := s.chats.IncrementUnreadExcept(ctx, chatID, senderID)
	if err != nil {
		return nil, nil, fmt.Errorf("increment unread: %w", err)
	}
	return msg, counts, nil
}

// IsMember reports whether userID belongs to chatID.
func (s *ChatService) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("get chat: %w", err)
	}
	return chat != nil && chat.HasMember(userID), nil
}

// summarize builds the caller's view of a chat. other may be pre-fetched by
// the caller; pass nil to look it up.
func (s *ChatService) summarize(ctx context.Context, chat *domain.Chat, userID string, other *domain.User) (*domain.ChatSummary, error) {
	if other == nil {
		otherID := chat.OtherMember(userID)
		var err error
		other, err = s.users.GetByID(ctx, otherID)
		if err != nil {
			return nil, fmt.Errorf("get chat partner: %w", err)
		}
		if other == nil {
			return nil, fmt.Errorf("user %s: %w", otherID, domain.ErrNotFound)
		}
	}

	var preview *domain.LastMessage
	last, err := s.messages.LastForChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	if last != nil {
		preview = &domain.LastMessage{Text: last.Text, CreatedAt: last.CreatedAt}
	}

	return &domain.ChatSummary{
		ID:          chat.ID,
		OtherUser:   domain.PublicProfileOf(other, s.presence.IsOnline(other.ID)),
		LastMessage: preview,
		Unread:      chat.Unread[userID],
	}, nil
}
