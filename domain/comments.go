package domain

import (
	"context"
	"strings"
)

// AddComment appends a comment and raises mention or reviewer notifications.
//
// Each distinct agent mentioned gets one AGENT_MENTIONED event and one
// mention notification. A reviewer comment that mentions no agent raises the
// generic reviewer notification instead.
func (s *BoardService) AddComment(ctx context.Context, itemID string, in AddComment) (Comment, error) {
	if strings.TrimSpace(in.Text) == "" {
		return Comment{}, invalidInput("Comment text is required", FieldError{Field: "text", Message: "must not be empty"})
	}
	author := in.Author
	if author == "" {
		author = "unknown"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return Comment{}, err
	}
	col, idx := b.FindItem(itemID)
	if idx < 0 {
		return Comment{}, notFound("Item")
	}
	it := col.Items[idx]
	c := Comment{ID: s.newID("comment"), Text: in.Text, Author: author, CreatedAt: s.now()}
	it.Comments = append(it.Comments, c)

	fx := &effects{}
	s.event(fx, CommentAdded, author, EventPayload{
		ItemID:      it.ID,
		ItemNumber:  it.Number,
		ItemTitle:   it.Title,
		CommentID:   c.ID,
		CommentText: c.Text,
	})
	agents := MentionedAgents(c.Text)
	for _, a := range agents {
		s.event(fx, AgentMentioned, author, EventPayload{
			ItemID:      it.ID,
			ItemNumber:  it.Number,
			ItemTitle:   it.Title,
			CommentID:   c.ID,
			TargetAgent: a,
		})
		s.notify(fx, NotifyMentionAgent, NotificationPayload{
			ItemID:      it.ID,
			ItemNumber:  it.Number,
			ItemTitle:   it.Title,
			CommentID:   c.ID,
			CommentText: c.Text,
			CommentedAt: &c.CreatedAt,
			Author:      in.Author,
			TargetAgent: a,
		})
	}
	if len(agents) == 0 && in.Author == Reviewer {
		s.notify(fx, NotifyReviewerComment, NotificationPayload{
			ItemID:      it.ID,
			ItemTitle:   it.Title,
			CommentID:   c.ID,
			CommentText: c.Text,
			CommentedAt: &c.CreatedAt,
		})
	}
	if err := s.commit(ctx, b, fx); err != nil {
		return Comment{}, err
	}
	return c, nil
}

// AddSubtask appends an open subtask to the item.
func (s *BoardService) AddSubtask(ctx context.Context, itemID, text, actor string) (*Subtask, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidInput("Subtask text is required", FieldError{Field: "text", Message: "must not be empty"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return nil, err
	}
	col, idx := b.FindItem(itemID)
	if idx < 0 {
		return nil, notFound("Item")
	}
	it := col.Items[idx]
	st := &Subtask{ID: s.newID("subtask"), Text: text, CreatedAt: s.now()}
	it.Subtasks = append(it.Subtasks, st)

	fx := &effects{}
	s.event(fx, SubtaskAdded, actor, EventPayload{
		ItemID:      it.ID,
		ItemNumber:  it.Number,
		ItemTitle:   it.Title,
		SubtaskID:   st.ID,
		SubtaskText: st.Text,
	})
	if err := s.commit(ctx, b, fx); err != nil {
		return nil, err
	}
	return st, nil
}

// UpdateSubtask changes text and/or completion. Nothing is written when neither changes.
func (s *BoardService) UpdateSubtask(ctx context.Context, itemID, subtaskID string, u SubtaskUpdate, actor string) (*Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return nil, err
	}
	col, idx := b.FindItem(itemID)
	if idx < 0 {
		return nil, notFound("Item")
	}
	it := col.Items[idx]
	st, _ := it.subtask(subtaskID)
	if st == nil {
		return nil, notFound("Subtask")
	}

	changes := make(map[string]Change)
	if u.Completed.Set && u.Completed.Value != st.Completed {
		changes["completed"] = Change{From: st.Completed, To: u.Completed.Value}
		st.Completed = u.Completed.Value
	}
	if u.Text.Set && u.Text.Value != st.Text {
		changes["text"] = Change{From: st.Text, To: u.Text.Value}
		st.Text = u.Text.Value
	}
	if len(changes) == 0 {
		return st, nil
	}

	fx := &effects{}
	s.event(fx, SubtaskUpdated, actor, EventPayload{
		ItemID:     it.ID,
		ItemNumber: it.Number,
		SubtaskID:  st.ID,
		Changes:    changes,
	})
	if err := s.commit(ctx, b, fx); err != nil {
		return nil, err
	}
	return st, nil
}

// DeleteSubtask removes the subtask and returns it.
func (s *BoardService) DeleteSubtask(ctx context.Context, itemID, subtaskID, actor string) (*Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return nil, err
	}
	col, idx := b.FindItem(itemID)
	if idx < 0 {
		return nil, notFound("Item")
	}
	it := col.Items[idx]
	st, i := it.subtask(subtaskID)
	if st == nil {
		return nil, notFound("Subtask")
	}
	it.Subtasks = append(it.Subtasks[:i:i], it.Subtasks[i+1:]...)

	fx := &effects{}
	s.event(fx, SubtaskDeleted, actor, EventPayload{
		ItemID:      it.ID,
		ItemNumber:  it.Number,
		SubtaskID:   st.ID,
		SubtaskText: st.Text,
	})
	if err := s.commit(ctx, b, fx); err != nil {
		return nil, err
	}
	return st, nil
}
