package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/campusmart/internal/chat"
	"github.com/jdholdren/campusmart/internal/migrations"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is its own database
	dbx.SetMaxOpenConns(1)
	t.Cleanup(func() { dbx.Close() })

	require.NoError(t, migrations.Run(dbx))

	return New(dbx)
}

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func seedChat(t *testing.T, r Repo) chat.Chat {
	t.Helper()

	c, err := r.EnsureChat(context.Background(), chat.Chat{
		ID:        chat.ChatID("post-1", "buyer", "seller"),
		PostID:    "post-1",
		BuyerID:   "buyer",
		SellerID:  "seller",
		CreatedAt: t0,
	})
	require.NoError(t, err)

	return c
}

func TestEnsureChat_Idempotent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first := seedChat(t, r)
	again, err := r.EnsureChat(ctx, chat.Chat{
		ID:        first.ID,
		PostID:    "post-1",
		BuyerID:   "someone-else",
		SellerID:  "seller",
		CreatedAt: t0.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "buyer", again.BuyerID)
	assert.True(t, again.CreatedAt.Equal(t0))
}

func TestChat_NotFound(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.Chat(context.Background(), "nope")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestInsertMessage(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := seedChat(t, r)

	require.NoError(t, r.InsertMessage(ctx, chat.Message{
		ID: "m2", ChatID: c.ID, SenderID: "seller", Text: "still available", Status: chat.StatusSent, CreatedAt: t0.Add(2 * time.Minute),
	}))
	require.NoError(t, r.InsertMessage(ctx, chat.Message{
		ID: "m1", ChatID: c.ID, SenderID: "buyer", Text: "is this available?", Status: chat.StatusSent, CreatedAt: t0.Add(time.Minute),
	}))

	msgs, err := r.Messages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.False(t, msgs[0].Read)
	assert.Nil(t, msgs[0].ReadAt)

	got, err := r.Chat(ctx, c.ID)
	require.NoError(t, err)
	// The last insert wins, not the latest timestamp
	assert.Equal(t, "is this available?", got.LastMessage)
	assert.Equal(t, "buyer", got.LastMessageSenderID)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(t0.Add(time.Minute)))
}

func TestInsertMessage_Errors(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := seedChat(t, r)

	err := r.InsertMessage(ctx, chat.Message{ID: "m1", ChatID: "missing", SenderID: "buyer", Text: "hi", CreatedAt: t0})
	assert.ErrorIs(t, err, chat.ErrNotFound)

	msg := chat.Message{ID: "m1", ChatID: c.ID, SenderID: "buyer", Text: "hi", Status: chat.StatusSent, CreatedAt: t0}
	require.NoError(t, r.InsertMessage(ctx, msg))
	assert.ErrorIs(t, r.InsertMessage(ctx, msg), chat.ErrConflict)
}

func TestMarkRead(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := seedChat(t, r)

	for i, sender := range []string{"buyer", "seller", "seller"} {
		require.NoError(t, r.InsertMessage(ctx, chat.Message{
			ID:        string(rune('a' + i)),
			ChatID:    c.ID,
			SenderID:  sender,
			Text:      "msg",
			Status:    chat.StatusSent,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	readAt := t0.Add(time.Hour)
	n, err := r.MarkRead(ctx, c.ID, "buyer", readAt)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs, err := r.Messages(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, msgs[0].Read, "own messages stay unread")
	assert.True(t, msgs[1].Read)
	assert.True(t, msgs[2].Read)
	require.NotNil(t, msgs[1].ReadAt)
	assert.True(t, msgs[1].ReadAt.Equal(readAt))

	got, err := r.Chat(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "buyer", got.LastReadBy)
	require.NotNil(t, got.LastReadAt)

	// Nothing left to read leaves the receipt alone
	n, err = r.MarkRead(ctx, c.ID, "buyer", readAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err = r.Chat(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.LastReadAt.Equal(readAt))
}

func TestUserChats(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	older := seedChat(t, r)
	newer, err := r.EnsureChat(ctx, chat.Chat{
		ID:        chat.ChatID("post-2", "buyer", "other-seller"),
		PostID:    "post-2",
		BuyerID:   "buyer",
		SellerID:  "other-seller",
		CreatedAt: t0.Add(time.Minute),
	})
	require.NoError(t, err)

	chats, err := r.UserChats(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, newer.ID, chats[0].ID)

	// A message bumps the older chat to the top
	require.NoError(t, r.InsertMessage(ctx, chat.Message{
		ID: "m1", ChatID: older.ID, SenderID: "seller", Text: "hello", Status: chat.StatusSent, CreatedAt: t0.Add(time.Hour),
	}))
	chats, err = r.UserChats(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, older.ID, chats[0].ID)

	chats, err = r.UserChats(ctx, "other-seller")
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	chats, err = r.UserChats(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestDSN_AppliesPragmas(t *testing.T) {
	dbx, err := sqlx.Open("sqlite", DSN(filepath.Join(t.TempDir(), "citadel.db")))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })

	var mode string
	require.NoError(t, dbx.Get(&mode, "PRAGMA journal_mode;"))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, dbx.Get(&timeout, "PRAGMA busy_timeout;"))
	assert.Equal(t, 5000, timeout)
}
