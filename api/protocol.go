package api

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/kennyklee/jimmy-rocks/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

// POST /api/items request body
type createItemRequest struct {
	Title       string                 `json:"title" validate:"required,max=120"`
	Description string                 `json:"description" validate:"max=2000"`
	Priority    string                 `json:"priority" validate:"omitempty,oneof=low medium high"`
	Assignee    *string                `json:"assignee" validate:"omitempty,identity"`
	CreatedBy   string                 `json:"createdBy" validate:"max=40"`
	ColumnID    string                 `json:"columnId" validate:"omitempty,column"`
	RawTags     sonic.NoCopyRawMessage `json:"tags" validate:"-"`
	Tags        []string               `json:"-" validate:"max=20,dive,max=30"`
}

func (r *createItemRequest) sanitize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.CreatedBy = strings.TrimSpace(r.CreatedBy)
	r.Assignee = normalizeIdentity(r.Assignee)
}

// PUT /api/items/:id request body, filled from the raw field map so absent
// and null fields can be told apart.
type updateItemRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=120"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Priority    *string  `json:"priority" validate:"omitempty,oneof=low medium high"`
	Assignee    *string  `json:"assignee" validate:"omitempty,identity"`
	BlockedBy   *string  `json:"blockedBy" validate:"omitempty,identity"`
	UpdatedBy   string   `json:"updatedBy" validate:"max=40"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=30"`
	tagsSet     bool
}

func (r *updateItemRequest) toDomain() domain.ItemUpdate {
	var u domain.ItemUpdate
	if r.Title != nil {
		u.Title = domain.Some(*r.Title)
	}
	if r.Description != nil {
		u.Description = domain.Some(*r.Description)
	}
	if r.Priority != nil {
		u.Priority = domain.Some(domain.Priority(*r.Priority))
	}
	if r.Assignee != nil {
		u.Assignee = domain.Some(*r.Assignee)
	}
	if r.BlockedBy != nil {
		u.BlockedBy = domain.Some(*r.BlockedBy)
	}
	if r.tagsSet {
		u.Tags = domain.Some(r.Tags)
	}
	return u
}

// POST /api/items/:id/move request body
type moveItemRequest struct {
	ToColumnID string `json:"toColumnId" validate:"required,column"`
	Position   *int   `json:"position" validate:"omitempty,min=0"`
	MovedBy    string `json:"movedBy" validate:"max=40"`
}

// POST /api/items/:id/comments request body
type addCommentRequest struct {
	Text   string `json:"text" validate:"required,max=2000"`
	Author string `json:"author" validate:"max=40"`
}

// POST /api/items/:id/subtasks request body
type addSubtaskRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// PUT /api/items/:id/subtasks/:sid request body
type updateSubtaskRequest struct {
	Text      *string `json:"text" validate:"omitempty,max=2000"`
	Completed *bool   `json:"completed"`
}

// GET /api/events response body
type eventsResponse struct {
	Events     []domain.Event     `json:"events"`
	EventTypes []domain.EventType `json:"eventTypes"`
}

type errorResponse struct {
	Error   string              `json:"error"`
	Details []domain.FieldError `json:"details,omitempty"`
}

type clearedResponse struct {
	Cleared bool `json:"cleared"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// normalizeIdentity trims and lower-cases an identity field, keeping nil as nil.
func normalizeIdentity(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	return &v
}
