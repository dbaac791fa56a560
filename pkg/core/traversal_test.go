package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeIDs(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestTraverseSingleHop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, "Person", "a")
	mustInsert(t, s, "Person", "b")
	mustInsert(t, s, "Company", "acme")
	mustRelate(t, s, "a", "knows", "b")
	mustRelate(t, s, "a", "knows", "acme")
	mustRelate(t, s, "a", "likes", "b")

	nodes, err := s.Traverse(ctx, TraverseOptions{From: "a", Relation: "knows"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "acme"}, nodeIDs(nodes))

	nodes, err = s.Traverse(ctx, TraverseOptions{From: "a", Relation: "knows", Type: "Company"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, nodeIDs(nodes))

	nodes, err = s.Traverse(ctx, TraverseOptions{To: "b", Relation: "likes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, nodeIDs(nodes))

	_, err = s.Traverse(ctx, TraverseOptions{From: "a"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Traverse(ctx, TraverseOptions{Relation: "knows"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestTraverseMultiHopCycles(t *testing.T) {
	ctx := context.Background()

	t.Run("final hop may return to the start", func(t *testing.T) {
		s := newTestStore(t)
		mustInsert(t, s, "Person", "A")
		mustInsert(t, s, "Person", "B")
		mustRelate(t, s, "A", "likes", "B")
		mustRelate(t, s, "B", "likes", "A")

		nodes, err := s.Traverse(ctx, TraverseOptions{From: "A", Relation: "likes,likes"})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, nodeIDs(nodes))
	})

	t.Run("intermediate hops never revisit", func(t *testing.T) {
		s := newTestStore(t)
		mustInsert(t, s, "Person", "A")
		mustInsert(t, s, "Person", "B")
		mustRelate(t, s, "A", "next", "B")
		mustRelate(t, s, "B", "next", "A")

		nodes, err := s.Traverse(ctx, TraverseOptions{From: "A", Relation: "next,next,next"})
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})

	t.Run("chain follows one relation per hop", func(t *testing.T) {
		s := newTestStore(t)
		for _, id := range []string{"u", "post", "tag", "other"} {
			mustInsert(t, s, "Thing", id)
		}
		mustRelate(t, s, "u", "wrote", "post")
		mustRelate(t, s, "u", "tagged", "other")
		mustRelate(t, s, "post", "tagged", "tag")

		nodes, err := s.Traverse(ctx, TraverseOptions{From: "u", Relation: "wrote, tagged"})
		require.NoError(t, err)
		assert.Equal(t, []string{"tag"}, nodeIDs(nodes))

		nodes, err = s.Traverse(ctx, TraverseOptions{To: "tag", Relation: "tagged,wrote"})
		require.NoError(t, err)
		assert.Equal(t, []string{"u"}, nodeIDs(nodes))
	})

	t.Run("single relation with depth allows a self loop", func(t *testing.T) {
		s := newTestStore(t)
		mustInsert(t, s, "Person", "A")
		mustRelate(t, s, "A", "self", "A")

		nodes, err := s.Traverse(ctx, TraverseOptions{From: "A", Relation: "self", MaxDepth: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, nodeIDs(nodes))
	})

	t.Run("depth repeats the last relation", func(t *testing.T) {
		s := newTestStore(t)
		for _, id := range []string{"a", "b", "c", "d"} {
			mustInsert(t, s, "Person", id)
		}
		mustRelate(t, s, "a", "next", "b")
		mustRelate(t, s, "b", "next", "c")
		mustRelate(t, s, "c", "next", "d")

		nodes, err := s.Traverse(ctx, TraverseOptions{From: "a", Relation: "next", MaxDepth: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, nodeIDs(nodes))
	})
}

func TestTraverseBidirectionalWithMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		mustInsert(t, s, "Person", id)
	}
	_, err := s.Relate(ctx, "b", "knows", "c", map[string]any{"since": 2019})
	require.NoError(t, err)
	_, err = s.Relate(ctx, "a", "knows", "b", map[string]any{"since": 2020})
	require.NoError(t, err)
	mustRelate(t, s, "c", "knows", "b")

	nodes, err := s.Traverse(ctx, TraverseOptions{ID: "b", Relation: "knows", Direction: Both, IncludeMetadata: true})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, nodeIDs(nodes))
	assert.Equal(t, map[string]any{"since": float64(2019)}, nodes[0].Rel)
	assert.Equal(t, map[string]any{"since": float64(2020)}, nodes[1].Rel)

	nodes, err = s.Traverse(ctx, TraverseOptions{ID: "b", Relation: "knows", Direction: Incoming})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, nodeIDs(nodes))
	assert.Nil(t, nodes[0].Rel)

	_, err = s.Traverse(ctx, TraverseOptions{ID: "b", Relation: "knows", Direction: "sideways"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestTraverseFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"me", "x", "y", "z"} {
		mustInsert(t, s, "Person", id)
	}
	_, err := s.Relate(ctx, "me", "rated", "x", map[string]any{"stars": 5, "tag": "fav"})
	require.NoError(t, err)
	_, err = s.Relate(ctx, "me", "rated", "y", map[string]any{"stars": 2})
	require.NoError(t, err)
	mustRelate(t, s, "me", "rated", "z")

	nodes, err := s.TraverseFilter(ctx, FilterTraverseOptions{
		From:     "me",
		Relation: "rated",
		Where:    map[string]any{"stars": map[string]any{"$gte": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, nodeIDs(nodes))

	nodes, err = s.TraverseFilter(ctx, FilterTraverseOptions{
		From:            "me",
		Where:           map[string]any{"tag": map[string]any{"$ne": "fav"}},
		IncludeMetadata: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, nodeIDs(nodes))

	nodes, err = s.TraverseFilter(ctx, FilterTraverseOptions{From: "me"})
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}
