package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"

	"github.com/jdholdren/campusmart/internal/chat"
)

// SQLITE_CONSTRAINT_PRIMARYKEY
const primaryKeyConflict = 1555

func (r Repo) EnsureChat(ctx context.Context, c chat.Chat) (chat.Chat, error) {
	const q = `INSERT INTO chats (id, post_id, buyer_id, seller_id, created_at)
	VALUES (:id, :post_id, :buyer_id, :seller_id, :created_at)
	ON CONFLICT (id) DO NOTHING;`

	if _, err := r.db.NamedExecContext(ctx, q, c); err != nil {
		return chat.Chat{}, fmt.Errorf("error inserting chat: %w", err)
	}

	return r.Chat(ctx, c.ID)
}

func (r Repo) Chat(ctx context.Context, id string) (chat.Chat, error) {
	const q = `SELECT * FROM chats WHERE id = ?;`

	var c chat.Chat
	err := r.db.GetContext(ctx, &c, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Chat{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Chat{}, fmt.Errorf("error fetching chat: %w", err)
	}

	return c, nil
}

func (r Repo) UserChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	query, args, err := sq.Select("*").
		From("chats").
		Where(sq.Or{sq.Eq{"buyer_id": userID}, sq.Eq{"seller_id": userID}}).
		OrderBy("COALESCE(last_message_at, created_at) DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error generating SQL query: %s", err)
	}

	chats := []chat.Chat{}
	if err := r.db.SelectContext(ctx, &chats, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting chats: %w", err)
	}

	return chats, nil
}

func (r Repo) InsertMessage(ctx context.Context, m chat.Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Moving the chat's last message first tells us whether the chat exists
	res, err := tx.ExecContext(ctx, `UPDATE chats
	SET last_message = ?, last_message_at = ?, last_message_sender_id = ?
	WHERE id = ?;`, m.Text, m.CreatedAt, m.SenderID, m.ChatID)
	if err != nil {
		return fmt.Errorf("error updating chat: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("error counting updated chats: %w", err)
	} else if n == 0 {
		return chat.ErrNotFound
	}

	const q = `INSERT INTO messages (id, chat_id, sender_id, text, status, read, created_at)
	VALUES (:id, :chat_id, :sender_id, :text, :status, :read, :created_at);`
	if _, err := tx.NamedExecContext(ctx, q, m); err != nil {
		if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == primaryKeyConflict {
			return chat.ErrConflict
		}
		return fmt.Errorf("error inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (r Repo) Messages(ctx context.Context, chatID string) ([]chat.Message, error) {
	const q = `SELECT * FROM messages WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC;`

	msgs := []chat.Message{}
	if err := r.db.SelectContext(ctx, &msgs, q, chatID); err != nil {
		return nil, fmt.Errorf("error selecting messages: %w", err)
	}

	return msgs, nil
}

func (r Repo) MarkRead(ctx context.Context, chatID, userID string, at time.Time) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Update("messages").
		Set("read", true).
		Set("read_at", at).
		Where(sq.Eq{"chat_id": chatID, "read": false}).
		Where(sq.NotEq{"sender_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("error generating SQL query: %s", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("error marking messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting read messages: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	const receiptQ = `UPDATE chats SET last_read_at = ?, last_read_by = ? WHERE id = ?;`
	if _, err := tx.ExecContext(ctx, receiptQ, at, userID, chatID); err != nil {
		return 0, fmt.Errorf("error updating read receipt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transaction: %w", err)
	}

	return int(n), nil
}
