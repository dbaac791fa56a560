package core

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUnit(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	mustInsert(t, s, "Person", "alice")
	mustInsert(t, s, "Person", "bob")
	_, err := s.Relate(ctx, "alice", "knows", "bob", map[string]any{"since": 2020.0})
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, "Person.*", "https://example.com/hook")
	require.NoError(t, err)
}

func TestDumpAndLoad(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	seedUnit(t, src)

	var buf bytes.Buffer
	stats, err := src.Dump(ctx, &buf, DumpOptions{})
	require.NoError(t, err)
	assert.Equal(t, &DumpStats{Documents: 2, Relationships: 1, Subscriptions: 1, Events: 3}, stats)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, KindDocument, first.Kind)

	t.Run("into an empty unit", func(t *testing.T) {
		dst := newTestStore(t)
		imported, err := dst.Load(ctx, bytes.NewReader(buf.Bytes()), LoadOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, imported.Documents)
		assert.Equal(t, 1, imported.Relationships)
		assert.Equal(t, 1, imported.Subscriptions)
		assert.Equal(t, 3, imported.Events)
		assert.Zero(t, imported.Skipped)

		nodes, err := dst.Traverse(ctx, TraverseOptions{From: "alice", Relation: "knows", IncludeMetadata: true})
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, 2020.0, nodes[0].Rel["since"])

		events, err := dst.ListEvents(ctx, EventQuery{})
		require.NoError(t, err)
		require.Len(t, events, 3)

		// new events sort after the restored log
		ev, err := dst.Emit(ctx, EmitInput{Event: "custom.after"})
		require.NoError(t, err)
		assert.False(t, ev.Timestamp.Before(events[2].Timestamp))
	})

	t.Run("existing rows are skipped", func(t *testing.T) {
		imported, err := src.Load(ctx, bytes.NewReader(buf.Bytes()), LoadOptions{})
		require.NoError(t, err)
		assert.Equal(t, 7, imported.Skipped)
		assert.Zero(t, imported.Documents)
	})

	t.Run("skip events", func(t *testing.T) {
		var out bytes.Buffer
		stats, err := src.Dump(ctx, &out, DumpOptions{SkipEvents: true})
		require.NoError(t, err)
		assert.Zero(t, stats.Events)
		assert.NotContains(t, out.String(), `"kind":"event"`)
	})
}

func TestLoadRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tests := []struct {
		name  string
		input string
	}{
		{"malformed line", `{"kind":"document","document":{"id":"x","type":"T","data":{}}}` + "\n{oops"},
		{"unknown kind", `{"kind":"embedding"}`},
		{"kind without payload", `{"kind":"document"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Load(ctx, strings.NewReader(tt.input), LoadOptions{})
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	// a failed load writes nothing
	_, err := s.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDumpFilesAndBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t)
	seedUnit(t, s)

	dump := filepath.Join(dir, "unit.jsonl")
	_, err := s.DumpToFile(ctx, dump, DumpOptions{})
	require.NoError(t, err)

	other := newTestStore(t)
	stats, err := other.LoadFromFile(ctx, dump, LoadOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)

	backup := filepath.Join(dir, "backup.db")
	require.NoError(t, s.Backup(ctx, backup))
	require.ErrorIs(t, s.Backup(ctx, backup), ErrConflict)

	restored, err := Open(backup)
	require.NoError(t, err)
	defer restored.Close()
	doc, err := restored.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Person", doc.Type)
}
