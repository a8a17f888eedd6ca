package citadel

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	v1 "github.com/jdholdren/campusmart/api/citadel/v1"
	"github.com/jdholdren/campusmart/internal/chat"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/serverutil"
)

// SSE comments sent this often keep idle streams from being cut by proxies.
const keepAliveInterval = 25 * time.Second

func chatErr(err error) error {
	if errors.Is(err, chat.ErrNotFound) {
		return cmerrs.E("chat not found", http.StatusNotFound)
	}

	return err
}

// participantChat loads the chat in the path, as long as the session's user is in it.
func (s *Server) participantChat(r *http.Request) (chat.Chat, string, error) {
	sess, err := s.userSession(r)
	if err != nil {
		return chat.Chat{}, "", err
	}

	c, err := s.chats.ParticipantOf(r.Context(), mux.Vars(r)["chatID"], sess.UserID)
	if err != nil {
		return chat.Chat{}, "", chatErr(err)
	}

	return c, sess.UserID, nil
}

type chatsResp struct {
	Chats []chat.Chat `json:"chats"`
}

func (s *Server) getChats(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.userSession(r)
	if err != nil {
		return err
	}

	chats, err := s.chats.Chats(r.Context(), sess.UserID)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, chatsResp{Chats: chats})
}

// Opens the session user's chat with a listing's seller.
func (s *Server) postChat(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.userSession(r)
	if err != nil {
		return err
	}

	var req v1.OpenChatRequest
	if err := serverutil.DecodeValid(r.Body, &req); err != nil {
		return err
	}

	if err := s.checkSeller(sess.ID, req.PostID, req.SellerID); err != nil {
		return err
	}

	c, err := s.chats.Open(r.Context(), req.PostID, sess.UserID, req.SellerID)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, c)
}

// checkSeller rejects a seller that isn't the listing's owner. The backend
// can't look a listing up by id, so only listings in the session's feed are
// checked.
func (s *Server) checkSeller(sessionID, postID, sellerID string) error {
	v, ok := s.views.get(sessionID)
	if !ok {
		return nil
	}

	for _, p := range v.loader.State().Items {
		if p.ID != postID || p.Owner == nil || p.Owner.ID == "" {
			continue
		}
		if p.Owner.ID != sellerID {
			return cmerrs.E(
				"invalid chat",
				http.StatusBadRequest,
				cmerrs.Detail{Field: "sellerId", Error: "seller doesn't own the listing"},
			)
		}
	}

	return nil
}

type messagesResp struct {
	Messages []chat.Message `json:"messages"`
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) error {
	c, _, err := s.participantChat(r)
	if err != nil {
		return err
	}

	msgs, err := s.chats.Messages(r.Context(), c.ID)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, messagesResp{Messages: msgs})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) error {
	c, userID, err := s.participantChat(r)
	if err != nil {
		return err
	}

	var req v1.SendMessageRequest
	if err := serverutil.Decode(r.Body, &req); err != nil {
		return err
	}

	id, err := s.chats.Send(r.Context(), c.ID, userID, req.Text)
	if err != nil {
		return chatErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, v1.SendMessageResponse{ID: id})
}

// Marks what the other participant sent as read.
func (s *Server) postRead(w http.ResponseWriter, r *http.Request) error {
	c, userID, err := s.participantChat(r)
	if err != nil {
		return err
	}

	if err := s.chats.MarkRead(r.Context(), c.ID, userID); err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
}

// Streams the chat's messages as server-sent events: the whole thread once on
// connect and again after every change.
func (s *Server) getChatStream(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	c, _, err := s.participantChat(r)
	if err != nil {
		return err
	}

	rc := http.NewResponseController(w)
	// The server's write timeout would cut the stream
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.WarnContext(ctx, "stream can't outlive the write timeout", "err", err)
	}

	updates, unsubscribe, err := s.chats.Subscribe(ctx, c.ID)
	if err != nil {
		return chatErr(err)
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return fmt.Errorf("error flushing stream: %w", err)
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
		case msgs, ok := <-updates:
			if !ok {
				return nil
			}
			byts, err := json.Marshal(messagesResp{Messages: msgs})
			if err != nil {
				slog.ErrorContext(ctx, "error encoding messages", "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: messages\ndata: %s\n\n", byts); err != nil {
				// The browser went away
				return nil
			}
		}

		if err := rc.Flush(); err != nil {
			return nil
		}
	}
}
