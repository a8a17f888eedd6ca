// Package session holds the per-browser credential and profile bits that the
// rest of citadel is handed explicitly, and the cookie they travel in.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	CookieName = "citadel_session"

	// DefaultAddress is the buyer address used for routing when the profile
	// hasn't been loaded or has no address.
	DefaultAddress = "PCCOE"
)

// Session is the state persisted to a user's cookie.
type Session struct {
	ID      string // Keys the session's feed view; survives login and logout
	Token   string // Bearer credential issued by the backend
	UserID  string
	Address string
}

// Authenticated reports whether there's a credential to send to the backend.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// BuyerAddress is the address a route to a seller starts from.
func (s Session) BuyerAddress() string {
	if s.Address == "" {
		return DefaultAddress
	}

	return s.Address
}

// LoggedOut drops everything but the session id.
func (s Session) LoggedOut() Session {
	return Session{ID: s.ID}
}

// Codec reads and writes sessions to a signed, encrypted cookie.
type Codec struct {
	secureCookie *securecookie.SecureCookie
	https        bool // Whether or not HTTPS should be used for cookies
}

// CheckKeys reports whether the cookie keys can encode anything at all:
// securecookie wants a hash key and an AES-sized block key.
func CheckKeys(hashKey, blockKey []byte) error {
	if len(hashKey) == 0 {
		return errors.New("cookie hash key is empty")
	}
	switch len(blockKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("cookie block key must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}

	return nil
}

func NewCodec(hashKey, blockKey []byte, https bool) Codec {
	return Codec{
		secureCookie: securecookie.New(hashKey, blockKey),
		https:        https,
	}
}

// Read fetches the current session tied to the request. A missing or
// unreadable cookie results in a fresh anonymous session.
func (c Codec) Read(r *http.Request) Session {
	fresh := Session{ID: uuid.NewString()}

	cookie, err := r.Cookie(CookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return fresh
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "error fetching cookie", "err", err)
		return fresh
	}

	value := Session{}
	if err := c.secureCookie.Decode(CookieName, cookie.Value, &value); err != nil {
		slog.ErrorContext(r.Context(), "error decoding cookie", "err", err)
		return fresh
	}
	if value.ID == "" {
		value.ID = fresh.ID
	}

	return value
}

// Write sets the session on the response.
func (c Codec) Write(w http.ResponseWriter, sess Session) {
	encoded, err := c.secureCookie.Encode(CookieName, sess)
	if err != nil {
		slog.Error("error encoding cookie", "err", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		Secure:   c.https,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
