package core

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subscription registers a webhook for events matching Pattern. Delivery is
// left to the host.
type Subscription struct {
	ID        string    `json:"id"`
	Pattern   string    `json:"pattern"`
	Webhook   string    `json:"webhook"`
	CreatedAt time.Time `json:"createdAt"`
}

// Subscribe stores a webhook subscription
func (s *SQLiteStore) Subscribe(ctx context.Context, pattern, webhook string) (*Subscription, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("subscribe", err)
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, wrapError("subscribe", invalidf("pattern is required"))
	}
	u, err := url.Parse(webhook)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, wrapError("subscribe", invalidf("webhook %q is not an http(s) url", webhook))
	}

	sub := &Subscription{
		ID:        uuid.NewString(),
		Pattern:   pattern,
		Webhook:   webhook,
		CreatedAt: fromMillis(millis(s.now())),
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO subscriptions (id, pattern, webhook, created_at) VALUES (?, ?, ?, ?)",
		sub.ID, sub.Pattern, sub.Webhook, millis(sub.CreatedAt)); err != nil {
		return nil, wrapError("subscribe", err)
	}
	return sub, nil
}

// Unsubscribe removes a subscription and reports whether it existed
func (s *SQLiteStore) Unsubscribe(ctx context.Context, id string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, wrapError("unsubscribe", err)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return false, wrapError("unsubscribe", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError("unsubscribe", err)
	}
	return n > 0, nil
}

// Subscriptions lists subscriptions in creation order. A non-empty event
// keeps only those whose pattern matches it.
func (s *SQLiteStore) Subscriptions(ctx context.Context, event string) ([]*Subscription, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("subscriptions", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, pattern, webhook, created_at FROM subscriptions ORDER BY rowid")
	if err != nil {
		return nil, wrapError("subscriptions", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var (
			sub       Subscription
			createdAt int64
		)
		if err := rows.Scan(&sub.ID, &sub.Pattern, &sub.Webhook, &createdAt); err != nil {
			return nil, wrapError("subscriptions", err)
		}
		if event != "" && !MatchEventPattern(sub.Pattern, event) {
			continue
		}
		sub.CreatedAt = fromMillis(createdAt)
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("subscriptions", err)
	}
	return subs, nil
}
