package feed

import (
	"context"
	"sync"
)

// ProximityObserver watches rendered items and reports when one comes close to
// the viewport. Implementations are handed a [Trigger.Crossed] to call once
// per crossing.
type ProximityObserver interface {
	Watch(target string)
	Unwatch(target string)
}

// Pager is the part of a [Loader] the trigger drives.
type Pager interface {
	LoadNextPage(ctx context.Context)
	State() State
}

// Trigger loads the next page when the last item in the feed comes near the
// viewport. The loader decides whether a load actually happens.
type Trigger struct {
	obs   ProximityObserver
	pager Pager

	mu     sync.Mutex
	target string
	firing bool
}

func NewTrigger(obs ProximityObserver, pager Pager) *Trigger {
	return &Trigger{obs: obs, pager: pager}
}

// Sync points the observer at the feed's current last item, moving it off the
// previous one if that changed.
func (t *Trigger) Sync(lastID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lastID == t.target {
		return
	}
	if t.target != "" {
		t.obs.Unwatch(t.target)
	}
	t.target = lastID
	if lastID != "" {
		t.obs.Watch(lastID)
	}
}

// Crossed handles a crossing reported by the observer. Crossings for anything
// but the current target are stale and dropped, as is a crossing that arrives
// while the previous one is still loading.
//
// After loading it re-syncs to whatever the last item now is.
func (t *Trigger) Crossed(ctx context.Context, target string) {
	t.mu.Lock()
	if target == "" || target != t.target || t.firing {
		t.mu.Unlock()
		return
	}
	t.firing = true
	t.mu.Unlock()

	t.pager.LoadNextPage(ctx)

	t.mu.Lock()
	t.firing = false
	t.mu.Unlock()

	t.Sync(t.pager.State().LastID())
}

// Target is the item currently being watched.
func (t *Trigger) Target() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.target
}

// Stop unwatches the current target.
func (t *Trigger) Stop() {
	t.Sync("")
}
