package domain

// CreateItem is the write request for a new item.
type CreateItem struct {
	Title       string
	Description string
	Priority    Priority
	// Assignee nil means "use the default owner"; a pointer to "" means unassigned.
	Assignee *string
	// Tags is nil when the caller sent no tags.
	Tags     []string
	ColumnID ColumnID
	// CreatedBy is the explicit creator field; IdentityHints are caller identity
	// headers in priority order. See ResolveCreator.
	CreatedBy     string
	IdentityHints []string
}

// Optional marks a field of a partial update. Set distinguishes an absent
// field from one explicitly set to its zero value.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: v} }

// ItemUpdate is a typed partial update. Only fields with Set are applied.
// An empty Assignee or BlockedBy clears the field.
type ItemUpdate struct {
	Title       Optional[string]
	Description Optional[string]
	Priority    Optional[Priority]
	Assignee    Optional[string]
	BlockedBy   Optional[string]
	Tags        Optional[[]string]
}

// Empty reports whether no field is set.
func (u ItemUpdate) Empty() bool {
	return !u.Title.Set && !u.Description.Set && !u.Priority.Set &&
		!u.Assignee.Set && !u.BlockedBy.Set && !u.Tags.Set
}

// MoveItem relocates an item. A nil Position selects the column default.
type MoveItem struct {
	ToColumn ColumnID
	Position *int
	MovedBy  string
}

// AddComment appends a comment authored by Author.
type AddComment struct {
	Text   string
	Author string
}

// SubtaskUpdate changes the text or completion of a subtask.
type SubtaskUpdate struct {
	Text      Optional[string]
	Completed Optional[bool]
}
