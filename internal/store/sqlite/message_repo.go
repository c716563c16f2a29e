package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"hichat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, chat_id, sender_id, sender_username, sender_avatar, text, created_at,
	reply_to_id, reply_to_text, reply_to_sender_id, reply_to_username`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	var replyID, replyText, replySenderID, replyUsername sql.NullString
	if m.ReplyTo != nil {
		replyID = sql.NullString{String: m.ReplyTo.MessageID, Valid: true}
		replyText = sql.NullString{String: m.ReplyTo.Text, Valid: true}
		replySenderID = sql.NullString{String: m.ReplyTo.SenderID, Valid: true}
		replyUsername = sql.NullString{String: m.ReplyTo.SenderUsername, Valid: true}
	}

	query := `
		INSERT INTO messages (id, chat_id, sender_id, sender_username, sender_avatar, text, created_at,
			reply_to_id, reply_to_text, reply_to_sender_id, reply_to_username)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.ChatID,
		m.SenderID,
		m.SenderUsername,
		m.SenderAvatar,
		m.Text,
		m.CreatedAt,
		replyID,
		replyText,
		replySenderID,
		replyUsername,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListForChat(ctx context.Context, chatID string) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ? ORDER BY created_at ASC, seq ASC`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *MessageRepo) LastForChat(ctx context.Context, chatID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ? ORDER BY created_at DESC, seq DESC LIMIT 1`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, chatID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var replyID, replyText, replySenderID, replyUsername sql.NullString
	err := row.Scan(
		&m.ID,
		&m.ChatID,
		&m.SenderID,
		&m.SenderUsername,
		&m.SenderAvatar,
		&m.Text,
		&m.CreatedAt,
		&replyID,
		&replyText,
		&replySenderID,
		&replyUsername,
	)
	if err != nil {
		return nil, err
	}
	if replyID.Valid {
		m.ReplyTo = &domain.ReplyRef{
			MessageID:      replyID.String,
			Text:           replyText.String,
			SenderID:       replySenderID.String,
			SenderUsername: replyUsername.String,
		}
	}
	return m, nil
}
