package docdb

import (
	"context"
	"fmt"
	"time"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
)

// ActionType is the document type actions are stored under
const ActionType = "Action"

// ActionStatus is the lifecycle state of an action
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionActive    ActionStatus = "active"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
	ActionCancelled ActionStatus = "cancelled"
)

func (s ActionStatus) valid() bool {
	switch s {
	case ActionPending, ActionActive, ActionCompleted, ActionFailed, ActionCancelled:
		return true
	}
	return false
}

// Action records a unit of work an actor performs on an object
type Action struct {
	ID        string       `json:"id"`
	Actor     string       `json:"actor"`
	Action    string       `json:"action"`
	Object    string       `json:"object,omitempty"`
	Status    ActionStatus `json:"status"`
	Input     any          `json:"input,omitempty"`
	Result    any          `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// ActionInput creates an action. An empty Actor uses the context actor.
type ActionInput struct {
	Actor  string `json:"actor,omitempty"`
	Action string `json:"action"`
	Object string `json:"object,omitempty"`
	Input  any    `json:"input,omitempty"`
}

// ActionUpdate changes an action; zero fields are left alone
type ActionUpdate struct {
	Status ActionStatus `json:"status,omitempty"`
	Result any          `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// ActionFilter narrows ListActions
type ActionFilter struct {
	Status ActionStatus `json:"status,omitempty"`
	Actor  string       `json:"actor,omitempty"`
	Object string       `json:"object,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// CreateAction stores a pending action
func (db *DB) CreateAction(ctx context.Context, in ActionInput) (*Action, error) {
	if in.Action == "" {
		return nil, fmt.Errorf("%w: action is required", core.ErrInvalidInput)
	}
	actor := in.Actor
	if actor == "" {
		actor = core.ActorFrom(ctx)
	}

	data := map[string]any{
		"actor":  actor,
		"action": in.Action,
		"status": string(ActionPending),
	}
	if in.Object != "" {
		data["object"] = in.Object
	}
	if in.Input != nil {
		data["input"] = in.Input
	}

	doc, err := db.store.Insert(ctx, ActionType, "", data)
	if err != nil {
		return nil, err
	}
	return actionFromDocument(doc), nil
}

// GetAction returns an action, or nil when it does not exist
func (db *DB) GetAction(ctx context.Context, id string) (*Action, error) {
	doc, err := db.Get(ctx, id)
	if err != nil || doc == nil || doc.Type != ActionType {
		return nil, err
	}
	return actionFromDocument(doc), nil
}

// UpdateAction applies an update to an existing action
func (db *DB) UpdateAction(ctx context.Context, id string, u ActionUpdate) (*Action, error) {
	existing, err := db.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("action %s: %w", id, core.ErrNotFound)
	}

	patch := map[string]any{}
	if u.Status != "" {
		if !u.Status.valid() {
			return nil, fmt.Errorf("%w: unknown action status %q", core.ErrInvalidInput, u.Status)
		}
		patch["status"] = string(u.Status)
	}
	if u.Result != nil {
		patch["result"] = u.Result
	}
	if u.Error != "" {
		patch["error"] = u.Error
	}

	doc, err := db.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return actionFromDocument(doc), nil
}

// ListActions returns actions in creation order
func (db *DB) ListActions(ctx context.Context, f ActionFilter) ([]*Action, error) {
	where := map[string]any{}
	if f.Status != "" {
		where["status"] = string(f.Status)
	}
	if f.Actor != "" {
		where["actor"] = f.Actor
	}
	if f.Object != "" {
		where["object"] = f.Object
	}

	docs, err := db.store.Query(ctx, core.QueryOptions{Type: ActionType, Where: where, Limit: f.Limit, Offset: f.Offset})
	if err != nil {
		return nil, err
	}
	out := make([]*Action, len(docs))
	for i, doc := range docs {
		out[i] = actionFromDocument(doc)
	}
	return out, nil
}

func actionFromDocument(doc *core.Document) *Action {
	return &Action{
		ID:        doc.ID,
		Actor:     stringField(doc.Data, "actor"),
		Action:    stringField(doc.Data, "action"),
		Object:    stringField(doc.Data, "object"),
		Status:    ActionStatus(stringField(doc.Data, "status")),
		Input:     doc.Data["input"],
		Result:    doc.Data["result"],
		Error:     stringField(doc.Data, "error"),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
