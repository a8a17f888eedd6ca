package citadel

import (
	"context"
	"log/slog"
	"net/http"

	v1 "github.com/jdholdren/campusmart/api/citadel/v1"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/feed"
	"github.com/jdholdren/campusmart/internal/market"
	"github.com/jdholdren/campusmart/internal/sanitize"
	"github.com/jdholdren/campusmart/internal/serverutil"
)

// FeedResp is the session's feed plus the card the browser should report the
// visibility of.
type FeedResp struct {
	feed.State

	Watch string `json:"watch,omitempty"`
}

func (s *Server) feedResp(v *view) FeedResp {
	st := v.loader.State()
	st.Items = presentable(st.Items)

	return FeedResp{
		State: st,
		Watch: v.trigger.Target(),
	}
}

// Initializes, or starts over, the session's feed.
func (s *Server) postFeedInit(w http.ResponseWriter, r *http.Request) error {
	sess := s.cookies.Read(r)
	// Anonymous sessions get their id pinned here
	s.cookies.Write(w, sess)

	v := s.views.fresh(sess)
	v.loader.Init(loadCtx(r))
	v.trigger.Sync(v.loader.State().LastID())

	return serverutil.WriteJSON(w, http.StatusOK, s.feedResp(v))
}

// loadCtx keeps the request's log attrs but not its cancellation: a browser
// that gives up on a request mustn't leave the feed looking exhausted.
func loadCtx(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) sessionView(r *http.Request) (*view, error) {
	v, ok := s.views.get(s.cookies.Read(r).ID)
	if !ok {
		return nil, cmerrs.E(http.StatusNotFound, "feed not initialized")
	}

	return v, nil
}

func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) error {
	v, err := s.sessionView(r)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, s.feedResp(v))
}

// Loads the next page on request, for when the browser can't report
// visibility or the user asks for more.
func (s *Server) postFeedNext(w http.ResponseWriter, r *http.Request) error {
	v, err := s.sessionView(r)
	if err != nil {
		return err
	}

	v.loader.LoadNextPage(loadCtx(r))
	v.trigger.Sync(v.loader.State().LastID())

	return serverutil.WriteJSON(w, http.StatusOK, s.feedResp(v))
}

// The browser reports whether the card it's watching is near the viewport. A
// report that crosses into view loads the next page before responding.
func (s *Server) postFeedVisibility(w http.ResponseWriter, r *http.Request) error {
	var req v1.VisibilityRequest
	if err := serverutil.DecodeValid(r.Body, &req); err != nil {
		return err
	}

	v, err := s.sessionView(r)
	if err != nil {
		return err
	}

	if crossed := v.near.report(loadCtx(r), req.Target, req.Near); crossed {
		slog.DebugContext(r.Context(), "feed target crossed", "target", req.Target)
	}

	return serverutil.WriteJSON(w, http.StatusOK, s.feedResp(v))
}

// presentable cleans up listing descriptions before they reach the browser.
func presentable(ps []market.Product) []market.Product {
	out := make([]market.Product, len(ps))
	for i, p := range ps {
		desc, err := sanitize.RichText(p.Description)
		if err != nil {
			desc = sanitize.Strip(p.Description, 0)
		}
		p.Description = desc
		out[i] = p
	}

	return out
}
