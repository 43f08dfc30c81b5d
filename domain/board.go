package domain

import "time"

// ColumnID names one stage of the fixed pipeline.
type ColumnID string

const (
	ColumnBacklog ColumnID = "backlog"
	ColumnTodo    ColumnID = "todo"
	ColumnDoing   ColumnID = "doing"
	ColumnReview  ColumnID = "review"
	ColumnDone    ColumnID = "done"
)

// DefaultColumn receives items created without an explicit column.
const DefaultColumn = ColumnTodo

// TerminalColumn is the last stage of the pipeline.
const TerminalColumn = ColumnDone

type columnDef struct {
	id    ColumnID
	title string
}

var pipeline = []columnDef{
	{ColumnBacklog, "Backlog"},
	{ColumnTodo, "Todo"},
	{ColumnDoing, "Doing"},
	{ColumnReview, "Review"},
	{ColumnDone, "Done"},
}

// ColumnIDs returns the pipeline stages in board order.
func ColumnIDs() []ColumnID {
	ids := make([]ColumnID, len(pipeline))
	for i, c := range pipeline {
		ids[i] = c.id
	}
	return ids
}

// ValidColumn reports whether id is part of the pipeline.
func ValidColumn(id ColumnID) bool {
	for _, c := range pipeline {
		if c.id == id {
			return true
		}
	}
	return false
}

// ColumnTitle returns the display title for id, or the capitalized id when it is unknown.
func ColumnTitle(id ColumnID) string {
	for _, c := range pipeline {
		if c.id == id {
			return c.title
		}
	}
	s := string(id)
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Board is the single root document: every column and every item.
type Board struct {
	Columns          []*Column `json:"columns"`
	NextTicketNumber int       `json:"nextTicketNumber"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Column is a stage and the ordered items currently in it.
type Column struct {
	ID    ColumnID `json:"id"`
	Title string   `json:"title"`
	Items []*Item  `json:"items"`
}

// NewBoard returns an empty board with the fixed column set.
func NewBoard(now time.Time) *Board {
	b := &Board{NextTicketNumber: 1, LastUpdated: now}
	for _, c := range pipeline {
		b.Columns = append(b.Columns, &Column{ID: c.id, Title: c.title, Items: []*Item{}})
	}
	return b
}

// Column returns the column with the given id or nil.
func (b *Board) Column(id ColumnID) *Column {
	for _, c := range b.Columns {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// FindItem searches every column for the item. The index is -1 when not found.
func (b *Board) FindItem(id string) (*Column, int) {
	for _, c := range b.Columns {
		for i, it := range c.Items {
			if it.ID == id {
				return c, i
			}
		}
	}
	return nil, -1
}

// ItemCount is the number of items across all columns.
func (b *Board) ItemCount() int {
	n := 0
	for _, c := range b.Columns {
		n += len(c.Items)
	}
	return n
}

// allocateNumber hands out the next ticket number. Numbers are never reused.
func (b *Board) allocateNumber() int {
	if b.NextTicketNumber < 1 {
		b.NextTicketNumber = 1
	}
	// Documents written before the counter existed may already hold numbered items.
	for _, c := range b.Columns {
		for _, it := range c.Items {
			if it.Number >= b.NextTicketNumber {
				b.NextTicketNumber = it.Number + 1
			}
		}
	}
	n := b.NextTicketNumber
	b.NextTicketNumber++
	return n
}

// Normalize fills in collections a hand-edited or older document may lack.
func (b *Board) Normalize() {
	for _, def := range pipeline {
		if b.Column(def.id) == nil {
			b.Columns = append(b.Columns, &Column{ID: def.id, Title: def.title})
		}
	}
	for _, c := range b.Columns {
		if c.Items == nil {
			c.Items = []*Item{}
		}
		for _, it := range c.Items {
			it.normalize()
		}
	}
	if b.NextTicketNumber < 1 {
		b.NextTicketNumber = 1
	}
}

func removeAt(items []*Item, i int) []*Item {
	return append(items[:i:i], items[i+1:]...)
}

// insertAt places it at index i; indices past the end append.
func insertAt(items []*Item, i int, it *Item) []*Item {
	if i < 0 {
		i = 0
	}
	if i >= len(items) {
		return append(items, it)
	}
	items = append(items, nil)
	copy(items[i+1:], items[i:])
	items[i] = it
	return items
}
