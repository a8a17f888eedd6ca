package citadel

import (
	"log/slog"
	"net/http"

	v1 "github.com/jdholdren/campusmart/api/citadel/v1"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/market"
	"github.com/jdholdren/campusmart/internal/serverutil"
	"github.com/jdholdren/campusmart/internal/session"
)

func viewerOf(usr market.User) v1.Viewer {
	return v1.Viewer{
		UserID:       usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		College:      usr.College,
		Address:      usr.Address,
		ProfileImage: usr.ProfileImage,
	}
}

func (s *Server) getViewer(w http.ResponseWriter, r *http.Request) error {
	sess := s.cookies.Read(r)
	if !sess.Authenticated() {
		return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
	}

	usr, err := s.market.Profile(r.Context(), sess)
	switch cmerrs.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		// The token expired; the browser is logged out now
		s.cookies.Write(w, sess.LoggedOut())
		return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
	}
	if err != nil {
		return backendErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, viewerOf(usr))
}

func (s *Server) postLogin(w http.ResponseWriter, r *http.Request) error {
	var req v1.LoginRequest
	if err := serverutil.DecodeValid(r.Body, &req); err != nil {
		return err
	}

	token, err := s.market.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return backendErr(err)
	}

	return s.startSession(w, r, token)
}

func (s *Server) postGoogleLogin(w http.ResponseWriter, r *http.Request) error {
	var id market.GoogleIdentity
	if err := serverutil.Decode(r.Body, &id); err != nil {
		return err
	}
	if id.Email == "" {
		return cmerrs.E("email is required", http.StatusBadRequest)
	}

	token, err := s.market.GoogleLogin(r.Context(), id)
	if err != nil {
		return backendErr(err)
	}

	return s.startSession(w, r, token)
}

// startSession stores the token in the session and fills in the profile bits
// the rest of citadel needs.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, token string) error {
	ctx := r.Context()
	sess := s.cookies.Read(r)
	sess.Token = token

	usr, err := s.market.Profile(ctx, sess)
	if err != nil {
		return backendErr(err)
	}
	sess.UserID = usr.ID
	sess.Address = usr.Address

	// The old feed was annotated for whoever was here before
	s.views.drop(sess.ID)
	s.cookies.Write(w, sess)

	slog.InfoContext(ctx, "logged in", "user_id", usr.ID)

	return serverutil.WriteJSON(w, http.StatusOK, viewerOf(usr))
}

func (s *Server) postSignup(w http.ResponseWriter, r *http.Request) error {
	var req market.Signup
	if err := serverutil.DecodeValid(r.Body, &req); err != nil {
		return err
	}

	if err := s.market.Signup(r.Context(), req); err != nil {
		return backendErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, struct{}{})
}

func (s *Server) getLogout(w http.ResponseWriter, r *http.Request) error {
	sess := s.cookies.Read(r)
	s.views.drop(sess.ID)
	s.cookies.Write(w, sess.LoggedOut())

	return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
}

// userSession is the session of a request that got past the session
// middleware, with the user id checked too.
func (s *Server) userSession(r *http.Request) (session.Session, error) {
	sess := s.cookies.Read(r)
	if !sess.Authenticated() || sess.UserID == "" {
		return session.Session{}, cmerrs.E(http.StatusUnauthorized, "login required")
	}

	return sess, nil
}
