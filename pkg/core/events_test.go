package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitWildcards(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev, err := s.Emit(ctx, EmitInput{Event: "custom.event", Actor: "alice", Data: map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, "alice", ev.Actor)
	_, err = s.Emit(ctx, EmitInput{Event: "other.thing"})
	require.NoError(t, err)

	for _, pattern := range []string{"*.event", "custom.*", "custom.event"} {
		events, err := s.ListEvents(ctx, EventQuery{Event: pattern})
		require.NoError(t, err)
		require.Len(t, events, 1, pattern)
		assert.Equal(t, ev.ID, events[0].ID)
		assert.Equal(t, map[string]any{"k": "v"}, events[0].Data)
	}

	events, err := s.ListEvents(ctx, EventQuery{Event: "Custom.*"})
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = s.ListEvents(ctx, EventQuery{Event: "*"})
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, SystemActor, events[1].Actor)

	_, err = s.Emit(ctx, EmitInput{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestMatchEventPattern(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"*", "Post.created", true},
		{"*.created", "Post.created", true},
		{"*.created", "Post.updated", false},
		{"Post.*", "Post.created", true},
		{"Post.*", "Postal.created", false},
		{"Post.created", "Post.created", true},
		{"post.created", "Post.created", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchEventPattern(tt.pattern, tt.name), "%s ~ %s", tt.pattern, tt.name)
	}
}

func TestCursorPaginationWithTies(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStoreWith(t, Config{Now: func() time.Time { return frozen }})

	var emitted []string
	for i := 0; i < 5; i++ {
		ev, err := s.Emit(ctx, EmitInput{Event: "tick"})
		require.NoError(t, err)
		emitted = append(emitted, ev.ID)
	}

	collect := func(order string) []string {
		var (
			out    []string
			cursor string
		)
		for {
			page, err := s.ListEvents(ctx, EventQuery{Event: "tick", Order: order, Limit: 2, Cursor: cursor})
			require.NoError(t, err)
			if len(page) == 0 {
				return out
			}
			for _, ev := range page {
				assert.Equal(t, frozen, ev.Timestamp)
				out = append(out, ev.ID)
			}
			cursor = page[len(page)-1].ID
		}
	}

	asc := collect("asc")
	assert.Equal(t, emitted, asc)

	desc := collect("desc")
	require.Len(t, desc, 5)
	for i := range desc {
		assert.Equal(t, emitted[len(emitted)-1-i], desc[i])
	}

	// an unknown cursor is ignored
	page, err := s.ListEvents(ctx, EventQuery{Cursor: "nope", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page, 5)
}

func TestListEventsFilters(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock(time.Second)
	s := newTestStoreWith(t, Config{Now: clock.Now})

	mustInsert(t, s, "Post", "p1")
	mid := clock.Now()
	mustInsert(t, s, "Post", "p2")
	_, err := s.Update(ctx, "p1", map[string]any{"name": "renamed"})
	require.NoError(t, err)

	events, err := s.ListEvents(ctx, EventQuery{Object: "Post/p1"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = s.ListEvents(ctx, EventQuery{Since: mid})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = s.ListEvents(ctx, EventQuery{Until: mid})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = s.ListEvents(ctx, EventQuery{Order: "desc", Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Post.updated", events[0].Event)

	events, err = s.ListEvents(ctx, EventQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Post/p2", events[0].Object)
}

func TestTimestampsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	var (
		mu    sync.Mutex
		times = []time.Time{
			time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC),
		}
	)
	s := newTestStoreWith(t, Config{Now: func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := times[0]
		if len(times) > 1 {
			times = times[1:]
		}
		return now
	}})

	first, err := s.Emit(ctx, EmitInput{Event: "a"})
	require.NoError(t, err)
	second, err := s.Emit(ctx, EmitInput{Event: "b"})
	require.NoError(t, err)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustInsert(t, s, "Post", "p1")
	mustInsert(t, s, "Post", "p2")
	_, err := s.Update(ctx, "p1", map[string]any{"title": "x"})
	require.NoError(t, err)

	events, err := s.Replay(ctx, ReplayOptions{Object: "Post/p1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Post.created", events[0].Event)
	assert.Equal(t, "Post.updated", events[1].Event)

	events, err = s.Replay(ctx, ReplayOptions{Event: "*.created"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	doc, err := s.Get(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "p2"}, doc.Data)
}

func TestRebuildRestoresDeletedDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, "Post", "123", map[string]any{"title": "a"})
	require.NoError(t, err)
	_, err = s.Update(ctx, "123", map[string]any{"title": "b"})
	require.NoError(t, err)
	_, err = s.Delete(ctx, "123", DeleteOptions{})
	require.NoError(t, err)

	doc, err := s.Rebuild(ctx, "Post/123")
	require.NoError(t, err)
	assert.Equal(t, "Post", doc.Type)
	assert.Equal(t, map[string]any{"title": "b"}, doc.Data)

	got, err := s.Get(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, doc.Data, got.Data)

	names := eventNames(t, s, EventQuery{Object: "Post/123"})
	assert.Equal(t, []string{"Post.created", "Post.updated", "Post.deleted", "Post.rebuilt"}, names)

	// a second rebuild ignores the rebuilt marker and overwrites in place
	_, err = s.Update(ctx, "123", map[string]any{"title": "c"})
	require.NoError(t, err)
	doc, err = s.Rebuild(ctx, "Post/123")
	require.NoError(t, err)
	assert.Equal(t, "c", doc.Data["title"])
}

func TestRebuildErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Rebuild(ctx, "no-slash")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Rebuild(ctx, "Post/unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEventsReachPipeline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustInsert(t, s, "Post", "p1")
	_, err := s.Emit(ctx, EmitInput{Event: "custom.event"})
	require.NoError(t, err)

	stats := s.Pipeline().Stats()
	assert.Equal(t, int64(2), stats.EventsProcessed)
	assert.Equal(t, 2, stats.Buffered)
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sub, err := s.Subscribe(ctx, "Post.*", "https://example.com/hook")
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, "*.deleted", "http://localhost:9000/x")
	require.NoError(t, err)

	_, err = s.Subscribe(ctx, "Post.*", "ftp://nope")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Subscribe(ctx, "", "https://example.com")
	require.ErrorIs(t, err, ErrInvalidInput)

	all, err := s.Subscriptions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	matched, err := s.Subscriptions(ctx, "Post.deleted")
	require.NoError(t, err)
	assert.Len(t, matched, 2)

	matched, err = s.Subscriptions(ctx, "Post.created")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, sub.ID, matched[0].ID)

	ok, err := s.Unsubscribe(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Unsubscribe(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
