package api

import (
	"context"
	"time"

	"github.com/kennyklee/jimmy-rocks/domain"
)

// Service is the board engine as seen by the handlers.
type Service interface {
	Board(ctx context.Context) (*domain.Board, error)
	Metrics(ctx context.Context) (domain.Metrics, error)
	Snapshot(ctx context.Context) (domain.Backup, error)

	CreateItem(ctx context.Context, in domain.CreateItem) (*domain.Item, error)
	UpdateItem(ctx context.Context, id string, u domain.ItemUpdate, actor string) (*domain.Item, error)
	DeleteItem(ctx context.Context, id, actor string) (*domain.Item, error)
	MoveItem(ctx context.Context, id string, m domain.MoveItem) (domain.MoveResult, error)

	AddComment(ctx context.Context, itemID string, in domain.AddComment) (domain.Comment, error)
	AddSubtask(ctx context.Context, itemID, text, actor string) (*domain.Subtask, error)
	UpdateSubtask(ctx context.Context, itemID, subtaskID string, u domain.SubtaskUpdate, actor string) (*domain.Subtask, error)
	DeleteSubtask(ctx context.Context, itemID, subtaskID, actor string) (*domain.Subtask, error)

	Events(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	Notifications(ctx context.Context) ([]domain.Notification, error)
	AcknowledgeNotification(ctx context.Context, id string) (domain.Notification, error)
	ClearNotifications(ctx context.Context) error

	Settings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error
}

// Deduper prevents processing of duplicate writes.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, scope, key string) error
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures Register.
type Options struct {
	// Deduper enables Idempotency-Key handling when set.
	Deduper Deduper
	// Health is checked by /healthz in addition to loading the board.
	Health Pinger
	// StreamInterval is the poll interval of the notification stream.
	StreamInterval time.Duration
}
