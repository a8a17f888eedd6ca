package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jdholdren/campusmart/internal/session"
)

// LikedIDSource is where liked ids come from; [market.Client] satisfies it.
type LikedIDSource interface {
	LikedPostIDs(ctx context.Context, sess session.Session) ([]string, error)
}

// Set is a set of product ids. The zero value is an empty set.
type Set map[string]struct{}

func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}

	return s
}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) clone() Set {
	c := make(Set, len(s))
	for id := range s {
		c[id] = struct{}{}
	}

	return c
}

// LikedSet tracks which products the session's user has liked.
type LikedSet struct {
	src  LikedIDSource
	sess session.Session

	mu  sync.Mutex
	ids Set
}

func NewLikedSet(src LikedIDSource, sess session.Session) *LikedSet {
	return &LikedSet{
		src:  src,
		sess: sess,
		ids:  Set{},
	}
}

// Refresh rebuilds the set from the backend and returns a snapshot of it.
//
// Without a credential the set is emptied and nothing is fetched. If the fetch
// fails the previous set is kept.
func (l *LikedSet) Refresh(ctx context.Context) Set {
	if !l.sess.Authenticated() {
		l.mu.Lock()
		defer l.mu.Unlock()

		l.ids = Set{}
		return Set{}
	}

	ids, err := l.src.LikedPostIDs(ctx, l.sess)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		slog.WarnContext(ctx, "keeping previous liked set", "err", err, "size", len(l.ids))
		return l.ids.clone()
	}

	l.ids = NewSet(ids...)
	return l.ids.clone()
}

// Current is a snapshot of the set as of the last refresh.
func (l *LikedSet) Current() Set {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.ids.clone()
}
