package domain

import (
	"sort"
	"time"
)

// EventType enumerates every kind of audit record.
type EventType string

const (
	ItemCreated    EventType = "ITEM_CREATED"
	ItemUpdated    EventType = "ITEM_UPDATED"
	ItemMoved      EventType = "ITEM_MOVED"
	ItemDeleted    EventType = "ITEM_DELETED"
	CommentAdded   EventType = "COMMENT_ADDED"
	SubtaskAdded   EventType = "SUBTASK_ADDED"
	SubtaskUpdated EventType = "SUBTASK_UPDATED"
	SubtaskDeleted EventType = "SUBTASK_DELETED"
	ItemAssigned   EventType = "ITEM_ASSIGNED"
	ItemBlocked    EventType = "ITEM_BLOCKED"
	ItemUnblocked  EventType = "ITEM_UNBLOCKED"
	AgentMentioned EventType = "AGENT_MENTIONED"
)

var eventTypes = []EventType{
	ItemCreated, ItemUpdated, ItemMoved, ItemDeleted,
	CommentAdded, SubtaskAdded, SubtaskUpdated, SubtaskDeleted,
	ItemAssigned, ItemBlocked, ItemUnblocked,
	AgentMentioned,
}

// EventTypes returns all event types in declaration order.
func EventTypes() []EventType {
	return append([]EventType(nil), eventTypes...)
}

// MaxEvents is the retention cap of the event log.
const MaxEvents = 1000

// DefaultEventLimit applies when a query does not set a limit.
const DefaultEventLimit = 100

// Event is an immutable audit record of one mutation.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Actor     string       `json:"actor"`
	Payload   EventPayload `json:"payload"`
}

// Change is the before/after value of one field.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// EventPayload carries the type-specific fields of an event. Unused fields are omitted.
type EventPayload struct {
	ItemID       string            `json:"itemId,omitempty"`
	ItemNumber   int               `json:"itemNumber,omitempty"`
	Title        string            `json:"title,omitempty"`
	ItemTitle    string            `json:"itemTitle,omitempty"`
	Column       ColumnID          `json:"column,omitempty"`
	FromColumn   ColumnID          `json:"fromColumn,omitempty"`
	ToColumn     ColumnID          `json:"toColumn,omitempty"`
	Priority     Priority          `json:"priority,omitempty"`
	Assignee     *string           `json:"assignee,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	FromAssignee *string           `json:"fromAssignee,omitempty"`
	ToAssignee   *string           `json:"toAssignee,omitempty"`
	BlockedBy    string            `json:"blockedBy,omitempty"`
	WasBlockedBy *string           `json:"wasBlockedBy,omitempty"`
	Changes      map[string]Change `json:"changes,omitempty"`
	CommentID    string            `json:"commentId,omitempty"`
	CommentText  string            `json:"commentText,omitempty"`
	TargetAgent  Agent             `json:"targetAgent,omitempty"`
	SubtaskID    string            `json:"subtaskId,omitempty"`
	SubtaskText  string            `json:"subtaskText,omitempty"`
}

// EventFilter selects events from the log. Zero values do not filter.
type EventFilter struct {
	Type   EventType
	Actor  string
	ItemID string
	Since  time.Time
	Limit  int
}

// Apply filters events, sorts them newest first and truncates to the limit.
// The input slice is not modified.
func (f EventFilter) Apply(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		if f.Actor != "" && ev.Actor != f.Actor {
			continue
		}
		if f.ItemID != "" && ev.Payload.ItemID != f.ItemID {
			continue
		}
		if !f.Since.IsZero() && !ev.Timestamp.After(f.Since) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CapEvents keeps the most recent MaxEvents entries of an append-ordered log.
func CapEvents(events []Event) []Event {
	if len(events) <= MaxEvents {
		return events
	}
	return append([]Event(nil), events[len(events)-MaxEvents:]...)
}
