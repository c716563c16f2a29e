package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"hichat/internal/domain"
)

type ChatRepo struct {
	db *sql.DB
}

func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

var _ domain.ChatRepository = (*ChatRepo)(nil)

func (r *ChatRepo) Create(ctx context.Context, c *domain.Chat) error {
	if len(c.Members) != 2 {
		return fmt.Errorf("chat requires exactly two members: %w", domain.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	pairKey := domain.ChatPairKey(c.Members[0], c.Members[1])
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, pair_key, created_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`, c.ID, pairKey); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	for _, uid := range c.Members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_members (chat_id, user_id, unread)
			VALUES (?, ?, 0)
		`, c.ID, uid); err != nil {
			return fmt.Errorf("insert chat member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ChatRepo) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	c := &domain.Chat{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM chats WHERE id = ?
	`, id).Scan(&c.ID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if err := r.loadMembers(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChatRepo) FindByPair(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	c := &domain.Chat{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM chats WHERE pair_key = ?
	`, domain.ChatPairKey(userA, userB)).Scan(&c.ID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find chat by pair: %w", err)
	}
	if err := r.loadMembers(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChatRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Chat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.created_at
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id
		WHERE cm.user_id = ?
		ORDER BY c.created_at ASC, c.id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*domain.Chat
	for rows.Next() {
		c := &domain.Chat{}
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range chats {
		if err := r.loadMembers(ctx, c); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

func (r *ChatRepo) ResetUnread(ctx context.Context, chatID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE chat_members SET unread = 0 WHERE chat_id = ? AND user_id = ?
	`, chatID, userID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

func (r *ChatRepo) IncrementUnreadExcept(ctx context.Context, chatID, senderID string) (map[string]int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE chat_members SET unread = unread + 1 WHERE chat_id = ? AND user_id <> ?
	`, chatID, senderID); err != nil {
		return nil, fmt.Errorf("increment unread: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, unread FROM chat_members WHERE chat_id = ?
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("read unread counters: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var uid string
		var unread int
		if err := rows.Scan(&uid, &unread); err != nil {
			return nil, fmt.Errorf("scan unread counter: %w", err)
		}
		counts[uid] = unread
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return counts, nil
}

func (r *ChatRepo) loadMembers(ctx context.Context, c *domain.Chat) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, unread FROM chat_members WHERE chat_id = ? ORDER BY user_id
	`, c.ID)
	if err != nil {
		return fmt.Errorf("load chat members: %w", err)
	}
	defer rows.Close()

	c.Members = nil
	c.Unread = make(map[string]int)
	for rows.Next() {
		var uid string
		var unread int
		if err := rows.Scan(&uid, &unread); err != nil {
			return fmt.Errorf("scan chat member: %w", err)
		}
		c.Members = append(c.Members, uid)
		c.Unread[uid] = unread
	}
	return rows.Err()
}
