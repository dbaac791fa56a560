package docdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/config"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/pipeline"
)

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(core.MemoryPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDocumentAPI(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	doc, err := db.Create(ctx, "Post", "p1", map[string]any{"title": "Hello World", "rank": 2})
	require.NoError(t, err)
	assert.Equal(t, "p1", doc.ID)
	_, err = db.Create(ctx, "Post", "p2", map[string]any{"title": "Second", "rank": 1})
	require.NoError(t, err)

	got, err := db.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hello World", got.Data["title"])

	missing, err := db.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	docs, err := db.List(ctx, "Post", ListOptions{OrderBy: "rank"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p2", docs[0].ID)

	docs, err = db.List(ctx, "Post", ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p1", docs[0].ID)

	updated, err := db.Update(ctx, "p1", map[string]any{"rank": 5})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", updated.Data["title"])

	results, err := db.Search(ctx, "Post", "hello", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ID)

	sem, err := db.SemanticSearch(ctx, "Post", "hello", 1)
	require.NoError(t, err)
	assert.Len(t, sem, 1)

	hybrid, err := db.HybridSearch(ctx, core.HybridOptions{Type: "Post", Query: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, hybrid)
	assert.Equal(t, "p1", hybrid[0].ID)

	ok, err := db.Delete(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.Delete(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGraphAndEvents(t *testing.T) {
	ctx := core.WithActor(context.Background(), "carol")
	db := openTestDB(t)

	for _, id := range []string{"a", "b"} {
		_, err := db.Create(ctx, "Person", id, map[string]any{"name": id})
		require.NoError(t, err)
	}
	_, err := db.Relate(ctx, "a", "follows", "b", map[string]any{"weight": 1})
	require.NoError(t, err)

	out, err := db.Related(ctx, "a", "follows", "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, map[string]any{"weight": float64(1)}, out[0].Rel)

	in, err := db.Related(ctx, "b", "follows", core.Incoming)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "a", in[0].ID)

	both, err := db.Related(ctx, "b", "follows", core.Both)
	require.NoError(t, err)
	assert.Len(t, both, 1)

	ok, err := db.Unrelate(ctx, "a", "follows", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	sub, err := db.On(ctx, "Person.*", "https://hooks.example.com/people")
	require.NoError(t, err)
	assert.Equal(t, "Person.*", sub.Pattern)

	ev, err := db.Emit(ctx, "custom.event", "", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "carol", ev.Actor)

	events, err := db.ListEvents(ctx, core.EventQuery{Event: "*.event"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)

	require.NoError(t, db.Clear(ctx))
	events, err = db.ListEvents(ctx, core.EventQuery{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestActions(t *testing.T) {
	ctx := core.WithActor(context.Background(), "worker")
	db := openTestDB(t)

	a, err := db.CreateAction(ctx, ActionInput{Action: "publish", Object: "Post/p1", Input: map[string]any{"draft": true}})
	require.NoError(t, err)
	assert.Equal(t, ActionPending, a.Status)
	assert.Equal(t, "worker", a.Actor)

	_, err = db.CreateAction(ctx, ActionInput{Actor: "bot", Action: "index"})
	require.NoError(t, err)

	_, err = db.CreateAction(ctx, ActionInput{})
	require.ErrorIs(t, err, core.ErrInvalidInput)

	done, err := db.UpdateAction(ctx, a.ID, ActionUpdate{Status: ActionCompleted, Result: "ok"})
	require.NoError(t, err)
	assert.Equal(t, ActionCompleted, done.Status)
	assert.Equal(t, "ok", done.Result)
	assert.Equal(t, "publish", done.Action)

	_, err = db.UpdateAction(ctx, a.ID, ActionUpdate{Status: "bogus"})
	require.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = db.UpdateAction(ctx, "missing", ActionUpdate{Status: ActionFailed})
	require.ErrorIs(t, err, core.ErrNotFound)

	got, err := db.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionCompleted, got.Status)

	list, err := db.ListActions(ctx, ActionFilter{Status: ActionPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "index", list[0].Action)

	list, err = db.ListActions(ctx, ActionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	art, err := db.SetArtifact(ctx, "Post/p1:html", ArtifactInput{Kind: "html", Content: "<h1>Hi</h1>", SourceHash: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "html", art.Kind)

	art, err = db.SetArtifact(ctx, "Post/p1:html", ArtifactInput{Kind: "html", Content: "<h1>Hello</h1>", Metadata: map[string]any{"v": 2}})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello</h1>", art.Content)
	assert.Empty(t, art.SourceHash)

	_, err = db.SetArtifact(ctx, "Post/p1:ast", ArtifactInput{Kind: "ast", Content: map[string]any{"type": "root"}})
	require.NoError(t, err)

	got, err := db.GetArtifact(ctx, "Post/p1:html")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[string]any{"v": float64(2)}, got.Metadata)

	list, err := db.ListArtifacts(ctx, "ast")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Post/p1:ast", list[0].Key)

	all, err := db.ListArtifacts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ok, err := db.DeleteArtifact(ctx, "Post/p1:html")
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = db.GetArtifact(ctx, "Post/p1:html")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = db.SetArtifact(ctx, "", ArtifactInput{Kind: "x"})
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRuntimeNamespacesShareSink(t *testing.T) {
	ctx := context.Background()
	cfg := config.LoadDefaults()
	cfg.Pipeline.BatchSize = 1

	rt, err := NewRuntime(cfg, core.NopLogger())
	require.NoError(t, err)
	defer rt.Close()

	a, err := rt.Registry.Get("tenant-a")
	require.NoError(t, err)
	b, err := rt.Registry.Get("tenant-b")
	require.NoError(t, err)

	_, err = a.Insert(ctx, "Post", "p1", nil)
	require.NoError(t, err)
	_, err = b.Insert(ctx, "Post", "p1", nil)
	require.NoError(t, err)

	mem, ok := rt.Sink.(*pipeline.MemorySink)
	require.True(t, ok)
	keys := mem.Keys()
	require.Len(t, keys, 2)
	assert.Contains(t, keys[0], "tenant-a/events/")
	assert.Contains(t, keys[1], "tenant-b/events/")

	_, err = rt.Registry.Get("bad namespace!")
	require.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, rt.Registry.Namespaces())
}
