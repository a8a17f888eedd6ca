package citadel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/fx"

	"github.com/jdholdren/campusmart/internal/chat"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/feed"
	"github.com/jdholdren/campusmart/internal/market"
	"github.com/jdholdren/campusmart/internal/serverutil"
	"github.com/jdholdren/campusmart/internal/session"
)

type (
	// Server is the BFF the browser talks to. It holds each session's feed and
	// forwards everything else to the marketplace backend or the chat store.
	Server struct {
		*http.Server

		market  *market.Client
		chats   *chat.Service
		bus     *feed.Bus
		views   *views
		similar *lru.Cache[string, []market.Product]
		cookies session.Codec
	}

	ServerConfig struct {
		Port           int
		CookieHashKey  []byte
		CookieBlockKey []byte
		HttpsCookies   bool
		CorsOrigin     string

		// How many sessions' feeds are kept in memory.
		FeedViewCacheSize int
	}

	Params struct {
		fx.In

		Ctx    context.Context
		Config ServerConfig
		Market *market.Client
		Chats  *chat.Service
		Bus    *feed.Bus
	}
)

const (
	similarCacheSize = 256

	// Streams get their own deadline; see getChatStream.
	writeTimeout = 10 * time.Second
)

func NewServer(lc fx.Lifecycle, p Params) (*Server, error) {
	srvr, err := newServer(p)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("citadel server stopped", "err", err)
				}
			}()

			slog.Info("started citadel server", "port", p.Config.Port)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			srvr.views.purge()
			return srvr.Shutdown(ctx)
		},
	})

	return srvr, nil
}

func newServer(p Params) (*Server, error) {
	var (
		r          = serverutil.ErrRouter{Router: mux.NewRouter()}
		similar, _ = lru.New[string, []market.Product](similarCacheSize)
	)

	views, err := newViews(p.Ctx, p.Config.FeedViewCacheSize, p.Market, p.Bus)
	if err != nil {
		return nil, fmt.Errorf("error creating feed view cache: %w", err)
	}

	srvr := &Server{
		market:  p.Market,
		chats:   p.Chats,
		bus:     p.Bus,
		views:   views,
		similar: similar,
		cookies: session.NewCodec(p.Config.CookieHashKey, p.Config.CookieBlockKey, p.Config.HttpsCookies),
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", p.Config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: writeTimeout,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{p.Config.CorsOrigin}),
				handlers.AllowCredentials(),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything

	// Session
	r.HandleFuncE("/api/viewer", srvr.getViewer).Methods(http.MethodGet)
	r.HandleFuncE("/api/login", srvr.postLogin).Methods(http.MethodPost)
	r.HandleFuncE("/api/login/google", srvr.postGoogleLogin).Methods(http.MethodPost)
	r.HandleFuncE("/api/signup", srvr.postSignup).Methods(http.MethodPost)
	r.HandleFuncE("/api/logout", srvr.getLogout).Methods(http.MethodGet)

	// Feed
	r.HandleFuncE("/api/feed/init", srvr.postFeedInit).Methods(http.MethodPost)
	r.HandleFuncE("/api/feed", srvr.getFeed).Methods(http.MethodGet)
	r.HandleFuncE("/api/feed/next", srvr.postFeedNext).Methods(http.MethodPost)
	r.HandleFuncE("/api/feed/visibility", srvr.postFeedVisibility).Methods(http.MethodPost)

	// Browsing
	r.HandleFuncE("/api/posts/{postID}/similar", srvr.getSimilarPosts).Methods(http.MethodGet)
	r.HandleFuncE("/api/search", srvr.getSearch).Methods(http.MethodGet)
	r.HandleFuncE("/api/categories/{category}", srvr.getCategory).Methods(http.MethodGet)

	// Everything past here is the session's user's
	authed := serverutil.ErrRouter{Router: r.NewRoute().Subrouter()}
	authed.Use(requireSessionMiddleware(srvr.cookies))

	authed.HandleFuncE("/api/posts/liked", srvr.getLikedPosts).Methods(http.MethodGet)
	authed.HandleFuncE("/api/posts/{postID}/like", srvr.postLike).Methods(http.MethodPost)
	authed.HandleFuncE("/api/recommendations", srvr.getRecommendations).Methods(http.MethodGet)
	authed.HandleFuncE("/api/me/posts", srvr.getMyPosts).Methods(http.MethodGet)
	authed.HandleFuncE("/api/posts", srvr.postCreatePost).Methods(http.MethodPost)
	authed.HandleFuncE("/api/posts/{postID}", srvr.postEditPost).Methods(http.MethodPost)
	authed.HandleFuncE("/api/posts/{postID}", srvr.deletePost).Methods(http.MethodDelete)

	authed.HandleFuncE("/api/profile", srvr.getProfile).Methods(http.MethodGet)
	authed.HandleFuncE("/api/profile", srvr.postProfile).Methods(http.MethodPost)
	authed.HandleFuncE("/api/profile/image", srvr.postProfileImage).Methods(http.MethodPost)
	authed.HandleFuncE("/api/route", srvr.postRoute).Methods(http.MethodPost)

	authed.HandleFuncE("/api/chats", srvr.getChats).Methods(http.MethodGet)
	authed.HandleFuncE("/api/chats", srvr.postChat).Methods(http.MethodPost)
	authed.HandleFuncE("/api/chats/{chatID}/messages", srvr.getMessages).Methods(http.MethodGet)
	authed.HandleFuncE("/api/chats/{chatID}/messages", srvr.postMessage).Methods(http.MethodPost)
	authed.HandleFuncE("/api/chats/{chatID}/read", srvr.postRead).Methods(http.MethodPost)
	authed.HandleFuncE("/api/chats/{chatID}/stream", srvr.getChatStream).Methods(http.MethodGet)

	slog.Debug("configured citadel server", "port", p.Config.Port)

	return srvr, nil
}

func requireSessionMiddleware(codec session.Codec) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return serverutil.HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
			if !codec.Read(r).Authenticated() {
				return cmerrs.E(http.StatusUnauthorized, "login required")
			}

			next.ServeHTTP(w, r)
			return nil
		})
	}
}

// backendErr turns the market client's sentinels into errors the browser can
// act on. Structured errors from the backend pass through with their status.
func backendErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, market.ErrUnauthenticated):
		return cmerrs.E(http.StatusUnauthorized, "login required")
	case errors.Is(err, market.ErrNoMorePages):
		return cmerrs.E(http.StatusNotFound, "not found")
	case errors.Is(err, market.ErrMalformed):
		return cmerrs.E(http.StatusBadGateway, cmerrs.GenericMessage)
	}

	return err
}
