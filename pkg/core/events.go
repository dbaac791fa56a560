package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dot-org-ai/primitives.org.ai-sub003/internal/encoding"
)

// DefaultEventLimit caps ListEvents when no limit is given
const DefaultEventLimit = 100

// Event is an immutable entry of the event log
type Event struct {
	ID           string    `json:"id"`
	Event        string    `json:"event"`
	Actor        string    `json:"actor"`
	Object       string    `json:"object,omitempty"`
	Data         any       `json:"data,omitempty"`
	Result       any       `json:"result,omitempty"`
	PreviousData any       `json:"previousData,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EmitInput describes an event to append. An empty Actor uses the actor in
// the context.
type EmitInput struct {
	Event        string `json:"event"`
	Actor        string `json:"actor,omitempty"`
	Object       string `json:"object,omitempty"`
	Data         any    `json:"data,omitempty"`
	Result       any    `json:"result,omitempty"`
	PreviousData any    `json:"previousData,omitempty"`
}

// EventQuery filters ListEvents. Event accepts "*.suffix" and "prefix.*"
// wildcards.
type EventQuery struct {
	Event  string    `json:"event,omitempty"`
	Object string    `json:"object,omitempty"`
	Since  time.Time `json:"since,omitempty"`
	Until  time.Time `json:"until,omitempty"`
	// Cursor is the id of the last event of the previous page
	Cursor string `json:"cursor,omitempty"`
	Order  string `json:"order,omitempty"` // "asc" (default) or "desc"
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ReplayOptions filters Replay
type ReplayOptions struct {
	Object string    `json:"object,omitempty"`
	Event  string    `json:"event,omitempty"`
	Since  time.Time `json:"since,omitempty"`
}

const eventColumns = "id, event, actor, object, data, result, previous_data, timestamp"

// Emit appends an event and copies it into the pipeline buffer
func (s *SQLiteStore) Emit(ctx context.Context, in EmitInput) (*Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("emit", err)
	}
	if strings.TrimSpace(in.Event) == "" {
		return nil, wrapError("emit", invalidf("event is required"))
	}

	ev, err := s.appendEvent(ctx, in)
	if err != nil {
		return nil, wrapError("emit", err)
	}
	return ev, nil
}

// emit records the event of a mutation
func (s *SQLiteStore) emit(ctx context.Context, name, object string, data, result, previous any) error {
	_, err := s.appendEvent(ctx, EmitInput{
		Event:        name,
		Object:       object,
		Data:         data,
		Result:       result,
		PreviousData: previous,
	})
	return err
}

func (s *SQLiteStore) appendEvent(ctx context.Context, in EmitInput) (*Event, error) {
	actor := in.Actor
	if actor == "" {
		actor = ActorFrom(ctx)
	}

	data, err := encoding.EncodeJSON(in.Data)
	if err != nil {
		return nil, invalidf("data: %v", err)
	}
	result, err := encoding.EncodeJSON(in.Result)
	if err != nil {
		return nil, invalidf("result: %v", err)
	}
	previous, err := encoding.EncodeJSON(in.PreviousData)
	if err != nil {
		return nil, invalidf("previousData: %v", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	ts := s.nextTimestamp()

	object := sql.NullString{String: in.Object, Valid: in.Object != ""}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id.String(), in.Event, actor, object, data, result, previous, ts); err != nil {
		return nil, err
	}

	ev := &Event{
		ID:           id.String(),
		Event:        in.Event,
		Actor:        actor,
		Object:       in.Object,
		Data:         in.Data,
		Result:       in.Result,
		PreviousData: in.PreviousData,
		Timestamp:    fromMillis(ts),
	}

	if _, err := s.events.Append(ctx, ev); err != nil {
		s.logger.Warn("pipeline append failed", "event", ev.Event, "error", err)
	}
	return ev, nil
}

// nextTimestamp never goes backwards, even if the clock does
func (s *SQLiteStore) nextTimestamp() int64 {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	ts := millis(s.now())
	if ts < s.lastEventMS {
		ts = s.lastEventMS
	}
	s.lastEventMS = ts
	return ts
}

// ListEvents pages through the event log
func (s *SQLiteStore) ListEvents(ctx context.Context, q EventQuery) ([]*Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("list events", err)
	}

	desc := strings.EqualFold(q.Order, "desc")
	where, args := eventFilters(q.Event, q.Object, q.Since, q.Until)

	if q.Cursor != "" {
		var ts int64
		err := s.db.QueryRowContext(ctx, "SELECT timestamp FROM events WHERE id = ?", q.Cursor).Scan(&ts)
		switch {
		case err == nil:
			op := ">"
			if desc {
				op = "<"
			}
			where = append(where, fmt.Sprintf("(timestamp %s ? OR (timestamp = ? AND id %s ?))", op, op))
			args = append(args, ts, ts, q.Cursor)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, wrapError("list events", err)
		}
	}

	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	query := "SELECT " + eventColumns + " FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY timestamp %s, id %s", dir, dir)
	query += limitClause(limit, q.Offset, &args)

	events, err := s.selectEvents(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list events", err)
	}
	return events, nil
}

// Replay returns matching events oldest first without touching any state
func (s *SQLiteStore) Replay(ctx context.Context, opts ReplayOptions) ([]*Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("replay", err)
	}

	where, args := eventFilters(opts.Event, opts.Object, opts.Since, time.Time{})
	query := "SELECT " + eventColumns + " FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, id ASC"

	events, err := s.selectEvents(ctx, query, args...)
	if err != nil {
		return nil, wrapError("replay", err)
	}
	return events, nil
}

// Rebuild reconstructs the document named "Type/id" from its event history
// and writes it back. Created events replace the working data, updated events
// merge into it and deleted events are skipped, so a deleted document comes
// back in its last state.
func (s *SQLiteStore) Rebuild(ctx context.Context, object string) (*Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("rebuild", err)
	}

	typ, id, ok := strings.Cut(object, "/")
	if !ok || typ == "" || id == "" {
		return nil, wrapError("rebuild", invalidf("object %q is not Type/id", object))
	}

	history, err := s.selectEvents(ctx,
		"SELECT "+eventColumns+" FROM events WHERE object = ? ORDER BY timestamp ASC, id ASC", object)
	if err != nil {
		return nil, wrapError("rebuild", err)
	}

	var (
		state     map[string]any
		createdAt time.Time
	)
	for _, ev := range history {
		switch ev.Event {
		case typ + ".created":
			state = copyObject(ev.Data)
			if createdAt.IsZero() {
				createdAt = ev.Timestamp
			}
		case typ + ".updated":
			if state == nil {
				state = map[string]any{}
				createdAt = ev.Timestamp
			}
			for k, v := range copyObject(ev.Data) {
				state[k] = v
			}
		}
	}
	if state == nil {
		return nil, wrapError("rebuild", fmt.Errorf("no history for %s: %w", object, ErrNotFound))
	}

	body, err := encoding.EncodeJSON(state)
	if err != nil {
		return nil, wrapError("rebuild", err)
	}
	now := millis(s.now().UTC())
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, type, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET type = excluded.type, data = excluded.data, updated_at = excluded.updated_at`,
		id, typ, body, millis(createdAt), now); err != nil {
		return nil, wrapError("rebuild", err)
	}

	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, wrapError("rebuild", err)
	}
	if err := s.emit(ctx, typ+".rebuilt", object, state, doc, nil); err != nil {
		return nil, wrapError("rebuild", err)
	}

	s.logger.Info("document rebuilt", "object", object, "events", len(history))
	return doc, nil
}

func (s *SQLiteStore) selectEvents(ctx context.Context, query string, args ...any) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		ev                     Event
		object                 sql.NullString
		data, result, previous sql.NullString
		ts                     int64
	)
	if err := row.Scan(&ev.ID, &ev.Event, &ev.Actor, &object, &data, &result, &previous, &ts); err != nil {
		return nil, err
	}
	var err error
	if ev.Data, err = encoding.DecodeJSON(data); err != nil {
		return nil, err
	}
	if ev.Result, err = encoding.DecodeJSON(result); err != nil {
		return nil, err
	}
	if ev.PreviousData, err = encoding.DecodeJSON(previous); err != nil {
		return nil, err
	}
	ev.Object = object.String
	ev.Timestamp = fromMillis(ts)
	return &ev, nil
}

func eventFilters(pattern, object string, since, until time.Time) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if pattern != "" {
		if clause, pargs := eventPatternClause(pattern); clause != "" {
			where = append(where, clause)
			args = append(args, pargs...)
		}
	}
	if object != "" {
		where = append(where, "object = ?")
		args = append(args, object)
	}
	if !since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, millis(since))
	}
	if !until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, millis(until))
	}
	return where, args
}

// eventPatternClause compares with substr rather than LIKE, which folds
// ASCII case
func eventPatternClause(pattern string) (string, []any) {
	switch {
	case pattern == "*":
		return "", nil
	case strings.HasPrefix(pattern, "*."):
		suffix := pattern[1:]
		return "substr(event, -?) = ?", []any{utf8.RuneCountInString(suffix), suffix}
	case strings.HasSuffix(pattern, ".*"):
		prefix := pattern[:len(pattern)-1]
		return "substr(event, 1, ?) = ?", []any{utf8.RuneCountInString(prefix), prefix}
	default:
		return "event = ?", []any{pattern}
	}
}

// MatchEventPattern applies the ListEvents wildcard rules to one event name
func MatchEventPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return pattern == name
	}
}

func copyObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}
