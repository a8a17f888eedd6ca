package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.uber.org/fx"
	_ "golang.org/x/crypto/x509roots/fallback"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/campusmart/internal/apiclient"
	"github.com/jdholdren/campusmart/internal/chat"
	"github.com/jdholdren/campusmart/internal/citadel"
	"github.com/jdholdren/campusmart/internal/logger"
	"github.com/jdholdren/campusmart/internal/market"
	"github.com/jdholdren/campusmart/internal/migrations"
	"github.com/jdholdren/campusmart/internal/session"
	cmqlite "github.com/jdholdren/campusmart/internal/sqlite"
)

type config struct {
	Database   string `env:"DATABASE, required"`
	BackendURL string `env:"BACKEND_URL, required"`

	Port              int           `env:"PORT, default=4444"`
	HTTPSCookies      bool          `env:"HTTPS_COOKIES, default=false"`
	CookieHashKey     string        `env:"COOKIE_HASH_KEY, required"`
	CookieBlockKey    string        `env:"COOKIE_BLOCK_KEY, required"`
	CorsOrigin        string        `env:"CORS_ORIGIN, default=http://localhost:5173"`
	LoggerFormat      string        `env:"LOGGER_FORMAT, default=text"`
	Debug             bool          `env:"DEBUG, default=false"`
	FeedViewCacheSize int           `env:"FEED_VIEW_CACHE_SIZE, default=1024"`
	BackendTimeout    time.Duration `env:"BACKEND_TIMEOUT, default=15s"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}
	if err := session.CheckKeys([]byte(cfg.CookieHashKey), []byte(cfg.CookieBlockKey)); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(logger.New(os.Stdout, cfg.LoggerFormat, level))

	// Connect to the sqlite db
	dbx, err := sqlx.Open("sqlite", cmqlite.DSN(cfg.Database))
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Run all migrations
	if err := migrations.Run(dbx); err != nil {
		log.Fatalf("error running migrations: %s", err)
	}

	api := apiclient.New(cfg.BackendTimeout)

	// Retry until the backend answers at all; any status will do
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		res := api.Do(ctx, apiclient.Request{URL: cfg.BackendURL})
		if res.Status == 0 {
			slog.InfoContext(ctx, "waiting on backend", "url", cfg.BackendURL, "err", res.Cause)
			return retry.RetryableError(res.Cause)
		}

		return nil
	}); err != nil {
		log.Fatalln("Unable to reach the backend:", err)
	}

	// Start the application
	fx.New(
		fx.Supply(
			citadel.ServerConfig{
				Port:              cfg.Port,
				CookieHashKey:     []byte(cfg.CookieHashKey),
				CookieBlockKey:    []byte(cfg.CookieBlockKey),
				HttpsCookies:      cfg.HTTPSCookies,
				CorsOrigin:        cfg.CorsOrigin,
				FeedViewCacheSize: cfg.FeedViewCacheSize,
			},
			market.New(api, cfg.BackendURL),
			fx.Annotate(ctx, fx.As(new(context.Context))),
			fx.Annotate(cmqlite.New(dbx), fx.As(new(chat.Store))),
		),
		citadel.Module,
		fx.Invoke(func(*citadel.Server) {}), // Start the BFF server
	).Run()
}
