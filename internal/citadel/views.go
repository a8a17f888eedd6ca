package citadel

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jdholdren/campusmart/internal/feed"
	"github.com/jdholdren/campusmart/internal/logger"
	"github.com/jdholdren/campusmart/internal/market"
	"github.com/jdholdren/campusmart/internal/session"
)

const defaultViewCacheSize = 1024

// view is one session's feed: what the browser used to keep in its own memory.
type view struct {
	loader  *feed.Loader
	trigger *feed.Trigger
	near    *nearObserver
	cancel  context.CancelFunc
}

func (v *view) close() {
	v.cancel()
	v.trigger.Stop()
	v.loader.Close()
}

// views are kept per session id. The least recently used view is torn down
// once there are too many.
type views struct {
	mu     sync.Mutex // Serializes replacing a session's view
	ctx    context.Context
	market *market.Client
	bus    *feed.Bus
	cache  *lru.Cache[string, *view]
}

func newViews(ctx context.Context, size int, m *market.Client, bus *feed.Bus) (*views, error) {
	if size <= 0 {
		size = defaultViewCacheSize
	}

	cache, err := lru.NewWithEvict(size, func(sessionID string, v *view) {
		slog.Debug("tearing down feed view", "session_id", sessionID)
		v.close()
	})
	if err != nil {
		return nil, err
	}

	return &views{
		ctx:    ctx,
		market: m,
		bus:    bus,
		cache:  cache,
	}, nil
}

// fresh replaces any view the session has with a new one watching the bus.
func (vs *views) fresh(sess session.Session) *view {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	vs.cache.Remove(sess.ID)

	var (
		liked  = feed.NewLikedSet(vs.market, sess)
		loader = feed.NewLoader(vs.market, liked)
		near   = newNearObserver()
		ctx    = logger.Ctx(vs.ctx, slog.String("session_id", sess.ID))
	)
	ctx, cancel := context.WithCancel(ctx)
	v := &view{
		loader:  loader,
		trigger: feed.NewTrigger(near, loader),
		near:    near,
		cancel:  cancel,
	}
	near.onCross = v.trigger.Crossed

	go loader.Watch(ctx, vs.bus)
	vs.cache.Add(sess.ID, v)

	return v
}

func (vs *views) get(sessionID string) (*view, bool) {
	return vs.cache.Get(sessionID)
}

// drop tears down the session's view, if it has one.
func (vs *views) drop(sessionID string) {
	vs.cache.Remove(sessionID)
}

func (vs *views) purge() {
	vs.cache.Purge()
}

// nearObserver is a [feed.ProximityObserver] fed by the browser, which reports
// whether the card it was told to watch is near the bottom of the viewport.
type nearObserver struct {
	mu      sync.Mutex
	watched map[string]bool // Target to whether it's currently near
	onCross func(ctx context.Context, target string)
}

func newNearObserver() *nearObserver {
	return &nearObserver{watched: map[string]bool{}}
}

func (o *nearObserver) Watch(target string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.watched[target] = false
}

func (o *nearObserver) Unwatch(target string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.watched, target)
}

// report records what the browser saw. A watched target going from not near to
// near is a crossing.
func (o *nearObserver) report(ctx context.Context, target string, near bool) bool {
	o.mu.Lock()
	was, ok := o.watched[target]
	if !ok {
		o.mu.Unlock()
		return false
	}
	o.watched[target] = near
	onCross := o.onCross
	o.mu.Unlock()

	if !near || was || onCross == nil {
		return false
	}
	onCross(ctx, target)

	return true
}
