package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdholdren/campusmart/internal/market"
	"github.com/jdholdren/campusmart/internal/session"
)

func TestLikedSet_Refresh(t *testing.T) {
	src := &fakeLiked{ids: []string{"a", "b"}}
	ls := NewLikedSet(src, authedSess)

	got := ls.Refresh(context.Background())
	assert.Equal(t, NewSet("a", "b"), got)
	assert.Equal(t, NewSet("a", "b"), ls.Current())

	src.set("c")
	assert.Equal(t, NewSet("c"), ls.Refresh(context.Background()))
}

func TestLikedSet_FailureKeepsPrevious(t *testing.T) {
	for _, err := range []error{
		errors.New("dial tcp: connection refused"),
		market.ErrMalformed,
	} {
		src := &fakeLiked{ids: []string{"a"}}
		ls := NewLikedSet(src, authedSess)
		ls.Refresh(context.Background())

		src.err = err
		assert.Equal(t, NewSet("a"), ls.Refresh(context.Background()))
		assert.Equal(t, NewSet("a"), ls.Current())
	}
}

func TestLikedSet_Unauthenticated(t *testing.T) {
	src := &fakeLiked{ids: []string{"a"}}
	ls := NewLikedSet(src, session.Session{ID: "anon"})

	assert.Empty(t, ls.Refresh(context.Background()))
	assert.Empty(t, ls.Current())
	assert.Zero(t, src.calls)
}

func TestLikedSet_SnapshotsAreCopies(t *testing.T) {
	ls := NewLikedSet(&fakeLiked{ids: []string{"a"}}, authedSess)
	snap := ls.Refresh(context.Background())
	snap["z"] = struct{}{}

	assert.False(t, ls.Current().Has("z"))
}

func TestLikedSet_ConcurrentRefresh(t *testing.T) {
	ls := NewLikedSet(&fakeLiked{ids: []string{"a"}}, authedSess)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ls.Refresh(context.Background())
			ls.Current()
		}()
	}
	wg.Wait()

	assert.Equal(t, NewSet("a"), ls.Current())
}
