package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelateRequiresBothEndpoints(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, "Person", "a")

	_, err := s.Relate(ctx, "a", "knows", "ghost", nil)
	require.ErrorIs(t, err, ErrReferential)
	_, err = s.Relate(ctx, "ghost", "knows", "a", nil)
	require.ErrorIs(t, err, ErrReferential)

	rels, err := s.Relationships(ctx, RelationshipQuery{})
	require.NoError(t, err)
	assert.Empty(t, rels)

	events, err := s.ListEvents(ctx, EventQuery{Event: "relationship.*"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRelateValidatesRelation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, "Person", "a")
	mustInsert(t, s, "Person", "b")

	for _, rel := range []string{"", "   ", "a,b"} {
		_, err := s.Relate(ctx, "a", rel, "b", nil)
		require.ErrorIs(t, err, ErrInvalidInput, "relation %q", rel)
	}
}

func TestRelateUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, "Person", "a")
	mustInsert(t, s, "Person", "b")

	first, err := s.Relate(ctx, "a", "knows", "b", map[string]any{"since": 2020})
	require.NoError(t, err)

	second, err := s.Relate(ctx, "a", "knows", "b", map[string]any{"since": 2021})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, map[string]any{"since": float64(2021)}, second.Metadata)

	rels, err := s.Relationships(ctx, RelationshipQuery{From: "a", Relation: "knows"})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, float64(2021), rels[0].Metadata["since"])

	events, err := s.ListEvents(ctx, EventQuery{Event: "relationship.created"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a->knows->b", events[1].Object)
	assert.Nil(t, events[0].PreviousData)
	assert.Equal(t, map[string]any{"since": float64(2020)}, events[1].PreviousData)
}

func TestUpdateAndUnrelate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, "Person", "a")
	mustInsert(t, s, "Person", "b")

	_, err := s.UpdateRelationship(ctx, "a", "knows", "b", map[string]any{"w": 1})
	require.ErrorIs(t, err, ErrNotFound)

	mustRelate(t, s, "a", "knows", "b")
	rel, err := s.UpdateRelationship(ctx, "a", "knows", "b", map[string]any{"w": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"w": 1}, rel.Metadata)

	ok, err := s.Unrelate(ctx, "a", "knows", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Unrelate(ctx, "a", "knows", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	names := eventNames(t, s, EventQuery{Event: "relationship.*"})
	assert.Equal(t, []string{"relationship.created", "relationship.updated", "relationship.deleted"}, names)
}

func TestRelationshipsQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		mustInsert(t, s, "Person", id)
	}
	mustRelate(t, s, "a", "knows", "b")
	mustRelate(t, s, "a", "likes", "c")
	mustRelate(t, s, "b", "knows", "c")

	rels, err := s.Relationships(ctx, RelationshipQuery{To: "c"})
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "a", rels[0].From)
	assert.Equal(t, "b", rels[1].From)

	rels, err = s.Relationships(ctx, RelationshipQuery{Relation: "knows"})
	require.NoError(t, err)
	assert.Len(t, rels, 2)
}

func eventNames(t *testing.T, s *SQLiteStore, q EventQuery) []string {
	t.Helper()
	events, err := s.ListEvents(context.Background(), q)
	require.NoError(t, err)
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Event
	}
	return out
}
