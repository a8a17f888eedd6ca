// Package feed is the paginated product feed a session scrolls through: the
// loader that fetches pages, the liked-set it annotates them with, the trigger
// that asks for the next page, and the bus that tells every feed when likes
// changed.
//
// Nothing in here returns an error. The worst outcome of any failure is that
// the feed stops growing.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jdholdren/campusmart/internal/market"
)

// PageFetcher fetches one page of the feed; [market.Client] satisfies it.
//
// [market.ErrNoMorePages] means the page doesn't exist.
type PageFetcher interface {
	Posts(ctx context.Context, page, limit int) (market.Page, error)
}

// State is a copy of a loader's feed at one point in time.
type State struct {
	Items   []market.Product `json:"items"`
	Page    int              `json:"page"`
	HasMore bool             `json:"hasMore"`
	Loading bool             `json:"loading"`
}

// LastID is the id of the last item, or empty if there are none.
func (s State) LastID() string {
	if len(s.Items) == 0 {
		return ""
	}

	return s.Items[len(s.Items)-1].ID
}

// Loader owns one session's feed.
//
// At most one page request is in flight at a time. Pages are requested in
// strictly increasing order and never twice between calls to Init.
type Loader struct {
	pages PageFetcher
	liked *LikedSet

	mu        sync.Mutex
	items     []market.Product
	held      map[string]struct{}
	page      int
	loading   bool
	exhausted bool

	// Bumped by Init. A response for an older generation is dropped.
	gen    uint64
	closed bool
	done   chan struct{}
}

func NewLoader(pages PageFetcher, liked *LikedSet) *Loader {
	return &Loader{
		pages: pages,
		liked: liked,
		held:  map[string]struct{}{},
		done:  make(chan struct{}),
	}
}

// Init resets the feed, refreshes the liked-set and loads page 1 annotated with
// the set it just fetched.
func (l *Loader) Init(ctx context.Context) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.gen++
	gen := l.gen
	l.items = nil
	l.held = map[string]struct{}{}
	l.page = 0
	l.exhausted = false
	l.loading = true
	l.mu.Unlock()

	liked := l.liked.Refresh(ctx)
	page, err := l.pages.Posts(ctx, 1, market.PageSize)
	l.settle(ctx, gen, 1, liked, page, err)
}

// LoadNextPage requests the page after the last one loaded. It does nothing
// while a page is loading or once the feed is exhausted.
func (l *Loader) LoadNextPage(ctx context.Context) {
	l.mu.Lock()
	if l.closed || l.loading || l.exhausted {
		l.mu.Unlock()
		return
	}
	l.loading = true
	gen := l.gen
	next := l.page + 1
	l.mu.Unlock()

	// Annotated with the set as it is now, not a fresh fetch.
	liked := l.liked.Current()
	page, err := l.pages.Posts(ctx, next, market.PageSize)
	l.settle(ctx, gen, next, liked, page, err)
}

// settle applies the outcome of a page request.
func (l *Loader) settle(ctx context.Context, gen uint64, requested int, liked Set, page market.Page, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || gen != l.gen {
		return
	}
	l.loading = false

	switch {
	case errors.Is(err, market.ErrNoMorePages):
		l.exhausted = true
		return
	case err != nil:
		slog.WarnContext(ctx, "stopping feed after failed page", "page", requested, "err", err)
		l.exhausted = true
		return
	case len(page.Posts) == 0:
		l.exhausted = true
		return
	}

	dropped := 0
	for _, p := range page.Posts {
		if _, ok := l.held[p.ID]; ok {
			dropped++
			continue
		}
		p.IsLiked = liked.Has(p.ID)
		l.held[p.ID] = struct{}{}
		l.items = append(l.items, p)
	}
	if dropped > 0 {
		slog.DebugContext(ctx, "dropped items already in feed", "page", requested, "count", dropped)
	}

	l.page = requested
	if page.TotalPages > 0 && l.page >= page.TotalPages {
		l.exhausted = true
	}
}

// Reconcile refreshes the liked-set and re-annotates every held item with it.
func (l *Loader) Reconcile(ctx context.Context) {
	liked := l.liked.Refresh(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for i := range l.items {
		l.items[i].IsLiked = liked.Has(l.items[i].ID)
	}
}

// Watch reconciles on every signal from the bus until ctx is done or the
// loader is closed. It blocks.
func (l *Loader) Watch(ctx context.Context, bus *Bus) {
	signals, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-signals:
			l.Reconcile(ctx)
		}
	}
}

// Close tears the loader down. Responses that arrive afterwards are ignored.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]market.Product, len(l.items))
	copy(items, l.items)

	return State{
		Items:   items,
		Page:    l.page,
		HasMore: !l.exhausted,
		Loading: l.loading,
	}
}
