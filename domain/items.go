package domain

import (
	"context"
	"slices"
	"strings"
)

// CreateItem adds a new item to the requested column, or the default column.
func (s *BoardService) CreateItem(ctx context.Context, in CreateItem) (*Item, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalidInput("Title is required", FieldError{Field: "title", Message: "must not be empty"})
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, invalidInput("Invalid priority", FieldError{Field: "priority", Message: "must be low, medium or high"})
	}
	assignee := Worker
	if in.Assignee != nil {
		assignee = *in.Assignee
	}
	if err := checkIdentity("assignee", assignee); err != nil {
		return nil, err
	}
	colID := in.ColumnID
	if colID == "" {
		colID = DefaultColumn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return nil, err
	}
	col := b.Column(colID)
	if col == nil {
		return nil, invalidColumn("Invalid column: " + string(colID))
	}

	now := s.now()
	creator := ResolveCreator(append([]string{in.CreatedBy}, in.IdentityHints...)...)
	it := &Item{
		ID:           s.newID("item"),
		Number:       b.allocateNumber(),
		Title:        title,
		Description:  in.Description,
		Priority:     priority,
		Assignee:     optionalString(assignee),
		Tags:         NormalizeTags(in.Tags),
		CreatedAt:    now,
		CreatedBy:    creator,
		Comments:     []Comment{},
		Subtasks:     []*Subtask{},
		StageHistory: []StageEntry{{Column: col.ID, EnteredAt: now}},
	}
	it.addSystemComment(s.newID("comment-created"), "Created by "+DisplayName(creator), now)
	col.Items = append(col.Items, it)

	fx := &effects{}
	s.event(fx, ItemCreated, creator, EventPayload{
		ItemID:     it.ID,
		ItemNumber: it.Number,
		Title:      it.Title,
		Column:     col.ID,
		Priority:   it.Priority,
		Assignee:   it.Assignee,
		Tags:       it.Tags,
	})
	if err := s.commit(ctx, b, fx); err != nil {
		return nil, err
	}
	return it, nil
}

// UpdateItem applies a partial update to the item wherever it currently lives.
func (s *BoardService) UpdateItem(ctx context.Context, id string, u ItemUpdate, actor string) (*Item, error) {
	if u.Title.Set {
		u.Title.Value = strings.TrimSpace(u.Title.Value)
		if u.Title.Value == "" {
			return nil, invalidInput("Title is required", FieldError{Field: "title", Message: "must not be empty"})
		}
	}
	if u.Priority.Set && !u.Priority.Value.Valid() {
		return nil, invalidInput("Invalid priority", FieldError{Field: "priority", Message: "must be low, medium or high"})
	}
	if u.Assignee.Set {
		if err := checkIdentity("assignee", u.Assignee.Value); err != nil {
			return nil, err
		}
	}
	if u.BlockedBy.Set {
		if err := checkIdentity("blockedBy", u.BlockedBy.Value); err != nil {
			return nil, err
		}
	}
	if u.Tags.Set {
		u.Tags.Value = NormalizeTags(u.Tags.Value)
	}
	if actor == "" {
		actor = SystemAuthor
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return nil, err
	}
	col, idx := b.FindItem(id)
	if idx < 0 {
		return nil, notFound("Item")
	}
	it := col.Items[idx]
	now := s.now()
	fx := &effects{}
	base := EventPayload{ItemID: it.ID, ItemNumber: it.Number, Title: it.Title}
	changes := make(map[string]Change)

	if u.Title.Set && u.Title.Value != it.Title {
		changes["title"] = Change{From: it.Title, To: u.Title.Value}
	}
	if u.Description.Set && u.Description.Value != it.Description {
		changes["description"] = Change{From: it.Description, To: u.Description.Value}
	}
	if u.Priority.Set && u.Priority.Value != it.Priority {
		changes["priority"] = Change{From: it.Priority, To: u.Priority.Value}
	}
	if u.Tags.Set && !slices.Equal(u.Tags.Value, it.Tags) {
		changes["tags"] = Change{From: it.Tags, To: u.Tags.Value}
	}

	if u.Assignee.Set && u.Assignee.Value != it.assigneeValue() {
		from, to := it.Assignee, optionalString(u.Assignee.Value)
		changes["assignee"] = Change{From: from, To: to}
		text := "Unassigned"
		if to != nil {
			text = "Assigned to " + DisplayName(*to)
		}
		it.addSystemComment(s.newID("comment-assign"), text, now)
		p := base
		p.FromAssignee, p.ToAssignee = from, to
		s.event(fx, ItemAssigned, actor, p)
		if u.Assignee.Value == Reviewer {
			s.notify(fx, NotifyAssignedToReviewer, NotificationPayload{ItemID: it.ID, ItemTitle: it.Title})
		}
		it.Assignee = to
	}

	if u.BlockedBy.Set && u.BlockedBy.Value != it.blockedByValue() {
		from, to := it.BlockedBy, optionalString(u.BlockedBy.Value)
		changes["blockedBy"] = Change{From: from, To: to}
		p := base
		if to != nil {
			it.addSystemComment(s.newID("comment-block"), "Blocked by "+DisplayName(*to), now)
			p.BlockedBy = *to
			s.event(fx, ItemBlocked, actor, p)
		} else {
			it.addSystemComment(s.newID("comment-block"), "Unblocked", now)
			p.WasBlockedBy = from
			s.event(fx, ItemUnblocked, actor, p)
		}
		if u.BlockedBy.Value == Reviewer {
			s.notify(fx, NotifyBlockedByReviewer, NotificationPayload{ItemID: it.ID, ItemTitle: it.Title})
		}
		it.BlockedBy = to
	}

	if u.Title.Set {
		it.Title = u.Title.Value
	}
	if u.Description.Set {
		it.Description = u.Description.Value
	}
	if u.Priority.Set {
		it.Priority = u.Priority.Value
	}
	if u.Tags.Set {
		it.Tags = u.Tags.Value
	}

	if len(changes) > 0 {
		p := base
		p.Changes = changes
		s.event(fx, ItemUpdated, actor, p)
	}
	if err := s.commit(ctx, b, fx); err != nil {
		return nil, err
	}
	return it, nil
}

// DeleteItem removes the item and returns it as it was.
func (s *BoardService) DeleteItem(ctx context.Context, id, actor string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return nil, err
	}
	col, idx := b.FindItem(id)
	if idx < 0 {
		return nil, notFound("Item")
	}
	it := col.Items[idx]
	col.Items = removeAt(col.Items, idx)

	fx := &effects{}
	s.event(fx, ItemDeleted, actor, EventPayload{
		ItemID:     it.ID,
		ItemNumber: it.Number,
		Title:      it.Title,
		FromColumn: col.ID,
	})
	if err := s.commit(ctx, b, fx); err != nil {
		return nil, err
	}
	return it, nil
}

// checkIdentity accepts an empty value or one of the known users.
func checkIdentity(field, id string) error {
	if id == "" || IsKnownUser(id) {
		return nil
	}
	return invalidInput("Invalid "+field, FieldError{Field: field, Message: "must be one of " + strings.Join(KnownUsers(), ", ")})
}
