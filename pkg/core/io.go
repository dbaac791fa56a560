package core

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dot-org-ai/primitives.org.ai-sub003/internal/encoding"
)

// Record kinds of a dump
const (
	KindDocument     = "document"
	KindRelationship = "relationship"
	KindSubscription = "subscription"
	KindEvent        = "event"
)

// Record is one line of a JSON Lines dump
type Record struct {
	Kind         string        `json:"kind"`
	Document     *Document     `json:"document,omitempty"`
	Relationship *Relationship `json:"relationship,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Event        *Event        `json:"event,omitempty"`
}

// DumpOptions defines options for data export
type DumpOptions struct {
	// SkipEvents leaves the event log out of the dump
	SkipEvents bool
}

// DumpStats counts exported records
type DumpStats struct {
	Documents     int `json:"documents"`
	Relationships int `json:"relationships"`
	Subscriptions int `json:"subscriptions"`
	Events        int `json:"events"`
}

// LoadOptions defines options for data import
type LoadOptions struct {
	// Replace overwrites existing rows; otherwise they are skipped
	Replace bool
}

// ImportStats counts imported and skipped records
type ImportStats struct {
	Documents     int `json:"documents"`
	Relationships int `json:"relationships"`
	Subscriptions int `json:"subscriptions"`
	Events        int `json:"events"`
	Skipped       int `json:"skipped"`
}

func (s *ImportStats) String() string {
	return fmt.Sprintf("ImportStats{Documents: %d, Relationships: %d, Subscriptions: %d, Events: %d, Skipped: %d}",
		s.Documents, s.Relationships, s.Subscriptions, s.Events, s.Skipped)
}

// Dump writes the unit as JSON Lines: documents, relationships,
// subscriptions, then events in log order. Embeddings are derived data and
// are not exported.
func (s *SQLiteStore) Dump(ctx context.Context, w io.Writer, opts DumpOptions) (*DumpStats, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("dump", err)
	}

	stats := &DumpStats{}
	enc := json.NewEncoder(w)

	docs, err := s.selectDocuments(ctx, "", nil, "", "", 0, 0)
	if err != nil {
		return nil, wrapError("dump", err)
	}
	for _, doc := range docs {
		if err := enc.Encode(Record{Kind: KindDocument, Document: doc}); err != nil {
			return stats, wrapError("dump", err)
		}
		stats.Documents++
	}

	rels, err := s.Relationships(ctx, RelationshipQuery{})
	if err != nil {
		return stats, err
	}
	for _, rel := range rels {
		if err := enc.Encode(Record{Kind: KindRelationship, Relationship: rel}); err != nil {
			return stats, wrapError("dump", err)
		}
		stats.Relationships++
	}

	subs, err := s.Subscriptions(ctx, "")
	if err != nil {
		return stats, err
	}
	for _, sub := range subs {
		if err := enc.Encode(Record{Kind: KindSubscription, Subscription: sub}); err != nil {
			return stats, wrapError("dump", err)
		}
		stats.Subscriptions++
	}

	if opts.SkipEvents {
		return stats, nil
	}
	events, err := s.selectEvents(ctx, "SELECT "+eventColumns+" FROM events ORDER BY timestamp, id")
	if err != nil {
		return stats, wrapError("dump", err)
	}
	for _, ev := range events {
		if err := enc.Encode(Record{Kind: KindEvent, Event: ev}); err != nil {
			return stats, wrapError("dump", err)
		}
		stats.Events++
	}
	return stats, nil
}

// Load imports a dump in one transaction. Rows are restored as stored: no
// events are emitted and relationship endpoints are not checked.
func (s *SQLiteStore) Load(ctx context.Context, r io.Reader, opts LoadOptions) (*ImportStats, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("load", err)
	}

	verb := "INSERT OR IGNORE"
	if opts.Replace {
		verb = "INSERT OR REPLACE"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError("load", err)
	}
	defer func() { _ = tx.Rollback() }()

	stats := &ImportStats{}
	var lastEvent int64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, wrapError("load", invalidf("line %d: %v", line, err))
		}

		var (
			res     sql.Result
			counter *int
		)
		switch {
		case rec.Kind == KindDocument && rec.Document != nil:
			d := rec.Document
			if d.Data == nil {
				d.Data = map[string]any{}
			}
			data, err := encoding.EncodeJSON(d.Data)
			if err != nil {
				return nil, wrapError("load", err)
			}
			res, err = tx.ExecContext(ctx, verb+" INTO documents ("+documentColumns+") VALUES (?, ?, ?, ?, ?)",
				d.ID, d.Type, data, millis(d.CreatedAt), millis(d.UpdatedAt))
			if err != nil {
				return nil, wrapError("load", err)
			}
			counter = &stats.Documents
		case rec.Kind == KindRelationship && rec.Relationship != nil:
			rel := rec.Relationship
			meta, err := encoding.EncodeJSON(rel.Metadata)
			if err != nil {
				return nil, wrapError("load", err)
			}
			res, err = tx.ExecContext(ctx, verb+" INTO relationships (from_id, relation, to_id, metadata, created_at) VALUES (?, ?, ?, ?, ?)",
				rel.From, rel.Relation, rel.To, meta, millis(rel.CreatedAt))
			if err != nil {
				return nil, wrapError("load", err)
			}
			counter = &stats.Relationships
		case rec.Kind == KindSubscription && rec.Subscription != nil:
			sub := rec.Subscription
			res, err = tx.ExecContext(ctx, verb+" INTO subscriptions (id, pattern, webhook, created_at) VALUES (?, ?, ?, ?)",
				sub.ID, sub.Pattern, sub.Webhook, millis(sub.CreatedAt))
			if err != nil {
				return nil, wrapError("load", err)
			}
			counter = &stats.Subscriptions
		case rec.Kind == KindEvent && rec.Event != nil:
			res, err = insertEvent(ctx, tx, verb, rec.Event)
			if err != nil {
				return nil, wrapError("load", err)
			}
			if ts := millis(rec.Event.Timestamp); ts > lastEvent {
				lastEvent = ts
			}
			counter = &stats.Events
		default:
			return nil, wrapError("load", invalidf("line %d: unknown record kind %q", line, rec.Kind))
		}

		if n, _ := res.RowsAffected(); n > 0 {
			*counter++
		} else {
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapError("load", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapError("load", err)
	}

	s.eventMu.Lock()
	if lastEvent > s.lastEventMS {
		s.lastEventMS = lastEvent
	}
	s.eventMu.Unlock()

	s.logger.Info("dump loaded", "stats", stats.String())
	return stats, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, verb string, ev *Event) (sql.Result, error) {
	data, err := encoding.EncodeJSON(ev.Data)
	if err != nil {
		return nil, err
	}
	result, err := encoding.EncodeJSON(ev.Result)
	if err != nil {
		return nil, err
	}
	previous, err := encoding.EncodeJSON(ev.PreviousData)
	if err != nil {
		return nil, err
	}
	object := sql.NullString{String: ev.Object, Valid: ev.Object != ""}
	return tx.ExecContext(ctx, verb+" INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		ev.ID, ev.Event, ev.Actor, object, data, result, previous, millis(ev.Timestamp))
}

// DumpToFile exports the unit to a file
func (s *SQLiteStore) DumpToFile(ctx context.Context, path string, opts DumpOptions) (*DumpStats, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, wrapError("dump", fmt.Errorf("failed to create file: %w", err))
	}

	stats, err := s.Dump(ctx, file, opts)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Remove partial file on error
		_ = os.Remove(path)
		return nil, err
	}
	return stats, nil
}

// LoadFromFile imports a dump file
func (s *SQLiteStore) LoadFromFile(ctx context.Context, path string, opts LoadOptions) (*ImportStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, wrapError("load", fmt.Errorf("failed to open file: %w", err))
	}
	defer func() { _ = file.Close() }()

	return s.Load(ctx, file, opts)
}

// Backup copies the database into a new file with VACUUM INTO
func (s *SQLiteStore) Backup(ctx context.Context, path string) error {
	if err := s.ready(ctx); err != nil {
		return wrapError("backup", err)
	}
	if _, err := os.Stat(path); err == nil {
		return wrapError("backup", fmt.Errorf("%s: %w", path, ErrConflict))
	} else if !errors.Is(err, os.ErrNotExist) {
		return wrapError("backup", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return wrapError("backup", fmt.Errorf("failed to create backup: %w", err))
	}
	return nil
}
