package domain

import "time"

// Priority of an item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Item is a single work item on the board.
type Item struct {
	ID           string       `json:"id"`
	Number       int          `json:"number"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Priority     Priority     `json:"priority"`
	Assignee     *string      `json:"assignee"`
	BlockedBy    *string      `json:"blockedBy"`
	Tags         []string     `json:"tags"`
	CreatedAt    time.Time    `json:"createdAt"`
	CreatedBy    string       `json:"createdBy"`
	Comments     []Comment    `json:"comments"`
	Subtasks     []*Subtask   `json:"subtasks"`
	StageHistory []StageEntry `json:"stageHistory"`
}

// Comment is immutable once appended.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Subtask is a checklist entry owned by an item.
type Subtask struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// StageEntry records the moment an item entered a column.
type StageEntry struct {
	Column    ColumnID  `json:"column"`
	EnteredAt time.Time `json:"enteredAt"`
}

// SystemAuthor authors comments generated by the engine.
const SystemAuthor = "system"

func (it *Item) normalize() {
	if len(it.Tags) == 0 {
		it.Tags = NormalizeTags(nil)
	}
	if it.Comments == nil {
		it.Comments = []Comment{}
	}
	if it.Subtasks == nil {
		it.Subtasks = []*Subtask{}
	}
	if it.StageHistory == nil {
		it.StageHistory = []StageEntry{}
	}
	if it.Priority == "" {
		it.Priority = PriorityMedium
	}
}

func (it *Item) addSystemComment(id, text string, at time.Time) {
	it.Comments = append(it.Comments, Comment{ID: id, Text: text, Author: SystemAuthor, CreatedAt: at})
}

func (it *Item) subtask(id string) (*Subtask, int) {
	for i, s := range it.Subtasks {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

// firstEntry returns the first time the item entered col.
func (it *Item) firstEntry(col ColumnID) (time.Time, bool) {
	for _, h := range it.StageHistory {
		if h.Column == col {
			return h.EnteredAt, true
		}
	}
	return time.Time{}, false
}

func (it *Item) assigneeValue() string {
	if it.Assignee == nil {
		return ""
	}
	return *it.Assignee
}

func (it *Item) blockedByValue() string {
	if it.BlockedBy == nil {
		return ""
	}
	return *it.BlockedBy
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
