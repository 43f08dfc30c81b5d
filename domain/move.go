package domain

import "context"

// MoveResult reports where a moved item came from and where it landed.
type MoveResult struct {
	Item       *Item    `json:"item"`
	FromColumn ColumnID `json:"fromColumn"`
	ToColumn   ColumnID `json:"toColumn"`
}

// MoveItem relocates an item to another column or reorders it within its own.
//
// Only a change of column counts as a stage transition: it appends to the
// stage history, adds a system comment, emits ITEM_MOVED and evaluates the
// move notifications. An unknown target leaves the board untouched.
func (s *BoardService) MoveItem(ctx context.Context, id string, m MoveItem) (MoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return MoveResult{}, err
	}
	from, idx := b.FindItem(id)
	if idx < 0 {
		return MoveResult{}, notFound("Item")
	}
	it := from.Items[idx]
	from.Items = removeAt(from.Items, idx)

	to := b.Column(m.ToColumn)
	if to == nil {
		from.Items = insertAt(from.Items, idx, it)
		return MoveResult{}, invalidColumn("Invalid target column")
	}

	mover := m.MovedBy
	if mover == "" {
		mover = it.assigneeValue()
	}
	if mover == "" {
		mover = "unknown"
	}

	fx := &effects{}
	if from.ID != to.ID {
		now := s.now()
		it.StageHistory = append(it.StageHistory, StageEntry{Column: to.ID, EnteredAt: now})
		it.addSystemComment(s.newID("comment-move"), "Moved to "+ColumnTitle(to.ID)+" by "+DisplayName(mover), now)
		s.event(fx, ItemMoved, mover, EventPayload{
			ItemID:     it.ID,
			ItemNumber: it.Number,
			Title:      it.Title,
			FromColumn: from.ID,
			ToColumn:   to.ID,
		})
		if to.ID == TerminalColumn && mover == Worker {
			s.notify(fx, NotifyWorkerCompleted, NotificationPayload{ItemID: it.ID, ItemTitle: it.Title})
		}
		if to.ID == ColumnReview {
			s.notify(fx, NotifyMovedToReview, NotificationPayload{
				ItemID:     it.ID,
				ItemNumber: it.Number,
				ItemTitle:  it.Title,
				MovedBy:    mover,
			})
		}
	}

	pos := len(to.Items)
	switch {
	case m.Position != nil:
		pos = *m.Position
	case to.ID == TerminalColumn:
		pos = 0
	}
	to.Items = insertAt(to.Items, pos, it)

	if err := s.commit(ctx, b, fx); err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Item: it, FromColumn: from.ID, ToColumn: to.ID}, nil
}
