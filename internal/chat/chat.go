// Package chat is buyer/seller messaging about a listing.
//
// A chat is opened by a buyer on a seller's listing and is keyed by [ChatID].
// Subscribers get the whole ordered thread every time it changes.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/sanitize"
)

var (
	ErrNotFound = errors.New("chat not found")
	ErrConflict = errors.New("message already exists")
)

const (
	StatusSent = "sent"

	maxTextLen       = 2000
	messageNamespace = "-msg"
)

type (
	Chat struct {
		ID                  string     `db:"id" json:"id"`
		PostID              string     `db:"post_id" json:"postId"`
		BuyerID             string     `db:"buyer_id" json:"buyerId"`
		SellerID            string     `db:"seller_id" json:"sellerId"`
		LastMessage         string     `db:"last_message" json:"lastMessage"`
		LastMessageAt       *time.Time `db:"last_message_at" json:"lastMessageAt"`
		LastMessageSenderID string     `db:"last_message_sender_id" json:"lastMessageSenderId"`
		LastReadAt          *time.Time `db:"last_read_at" json:"lastReadAt"`
		LastReadBy          string     `db:"last_read_by" json:"lastReadBy"`
		CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	}

	Message struct {
		ID        string     `db:"id" json:"id"`
		ChatID    string     `db:"chat_id" json:"chatId"`
		SenderID  string     `db:"sender_id" json:"senderId"`
		Text      string     `db:"text" json:"text"`
		Status    string     `db:"status" json:"status"`
		Read      bool       `db:"read" json:"read"`
		ReadAt    *time.Time `db:"read_at" json:"readAt"`
		CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	}

	// Store persists chats and their messages.
	Store interface {
		// EnsureChat inserts the chat unless one with its id exists, and returns
		// the stored chat either way.
		EnsureChat(ctx context.Context, c Chat) (Chat, error)
		Chat(ctx context.Context, id string) (Chat, error)
		UserChats(ctx context.Context, userID string) ([]Chat, error)

		// InsertMessage stores the message and moves the chat's last message
		// fields to it.
		InsertMessage(ctx context.Context, m Message) error

		// Messages are ordered oldest first.
		Messages(ctx context.Context, chatID string) ([]Message, error)

		// MarkRead marks every unread message not sent by userID as read at the
		// given time and returns how many there were. The chat's read receipt
		// is only touched when there were any.
		MarkRead(ctx context.Context, chatID, userID string, at time.Time) (int, error)
	}
)

// HasParticipant reports whether the user is the buyer or the seller.
func (c Chat) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.BuyerID || userID == c.SellerID)
}

// ChatID is the id of the thread between two users about a listing. The order
// of the users doesn't matter.
func ChatID(postID, a, b string) string {
	if b < a {
		a, b = b, a
	}

	return fmt.Sprintf("%s_%s_%s", postID, a, b)
}

type Service struct {
	store Store
	now   func() time.Time

	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		subs:  map[string]map[chan struct{}]struct{}{},
	}
}

// Open starts, or returns the existing, chat between a buyer and the seller of
// a listing.
func (s *Service) Open(ctx context.Context, postID, buyerID, sellerID string) (Chat, error) {
	if postID == "" || buyerID == "" || sellerID == "" {
		return Chat{}, cmerrs.E(http.StatusBadRequest, "post, buyer and seller are required")
	}
	if buyerID == sellerID {
		return Chat{}, cmerrs.E(http.StatusBadRequest, "can't chat with yourself")
	}

	c, err := s.store.EnsureChat(ctx, Chat{
		ID:        ChatID(postID, buyerID, sellerID),
		PostID:    postID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Chat{}, fmt.Errorf("error opening chat: %w", err)
	}

	return c, nil
}

func (s *Service) Chat(ctx context.Context, chatID string) (Chat, error) {
	return s.store.Chat(ctx, chatID)
}

// Chats are the user's threads, most recently active first.
func (s *Service) Chats(ctx context.Context, userID string) ([]Chat, error) {
	return s.store.UserChats(ctx, userID)
}

// Send stores a message and returns its id.
func (s *Service) Send(ctx context.Context, chatID, senderID, text string) (string, error) {
	text = sanitize.Strip(text, maxTextLen)
	if chatID == "" || senderID == "" || text == "" {
		return "", cmerrs.E(http.StatusBadRequest, "chat, sender and text are required")
	}
	if sanitize.Profane(text) {
		return "", cmerrs.E(
			http.StatusUnprocessableEntity,
			"invalid message",
			cmerrs.Detail{Field: "text", Error: "profanity detected"},
		)
	}

	msg := Message{
		ID:        uuid.NewString() + messageNamespace,
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		Status:    StatusSent,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("error sending message: %w", err)
	}
	s.notify(chatID)

	return msg.ID, nil
}

// MarkRead marks the messages the other participant sent as read.
func (s *Service) MarkRead(ctx context.Context, chatID, userID string) error {
	if chatID == "" || userID == "" {
		return cmerrs.E(http.StatusBadRequest, "chat and user are required")
	}

	n, err := s.store.MarkRead(ctx, chatID, userID, s.now())
	if err != nil {
		return fmt.Errorf("error marking messages read: %w", err)
	}
	if n > 0 {
		s.notify(chatID)
	}

	return nil
}

func (s *Service) Messages(ctx context.Context, chatID string) ([]Message, error) {
	return s.store.Messages(ctx, chatID)
}

// Subscribe delivers the chat's messages right away and again after every
// change, until ctx is done or the returned func is called. Changes that
// happen while a delivery is pending are folded into the next one.
func (s *Service) Subscribe(ctx context.Context, chatID string) (<-chan []Message, func(), error) {
	if _, err := s.store.Chat(ctx, chatID); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	changed := make(chan struct{}, 1)
	changed <- struct{}{} // The initial snapshot

	s.mu.Lock()
	if s.subs[chatID] == nil {
		s.subs[chatID] = map[chan struct{}]struct{}{}
	}
	s.subs[chatID][changed] = struct{}{}
	s.mu.Unlock()

	out := make(chan []Message)
	go func() {
		defer close(out)
		defer s.unsubscribe(chatID, changed)

		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
			}

			msgs, err := s.store.Messages(ctx, chatID)
			if err != nil {
				if ctx.Err() == nil {
					slog.ErrorContext(ctx, "error loading messages for subscriber", "chat_id", chatID, "err", err)
				}
				continue
			}

			select {
			case out <- msgs:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

func (s *Service) unsubscribe(chatID string, ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs[chatID], ch)
	if len(s.subs[chatID]) == 0 {
		delete(s.subs, chatID)
	}
}

func (s *Service) notify(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs[chatID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ParticipantOf returns the chat if the user is in it. Strangers get the same
// error as a missing chat.
func (s *Service) ParticipantOf(ctx context.Context, chatID, userID string) (Chat, error) {
	c, err := s.store.Chat(ctx, chatID)
	if err != nil {
		return Chat{}, err
	}
	if !c.HasParticipant(userID) {
		return Chat{}, ErrNotFound
	}

	return c, nil
}

