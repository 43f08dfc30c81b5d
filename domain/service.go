package domain

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Backup identifies a snapshot of the board document.
type Backup struct {
	Name     string `json:"backupName"`
	Location string `json:"backupPath"`
}

// BoardStore persists the board document as a single unit.
type BoardStore interface {
	// LoadBoard returns the persisted board, creating an empty one on first use.
	LoadBoard(ctx context.Context) (*Board, error)
	// SaveBoard overwrites the persisted board and stamps LastUpdated.
	SaveBoard(ctx context.Context, b *Board) error
	// Snapshot copies the current document aside without touching it.
	Snapshot(ctx context.Context) (Backup, error)
}

// EventLog is the capped, append-only audit trail.
type EventLog interface {
	AppendEvent(ctx context.Context, ev Event) error
	QueryEvents(ctx context.Context, f EventFilter) ([]Event, error)
}

// NotificationStore holds pending notifications until consumers delete them.
type NotificationStore interface {
	AddNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context) ([]Notification, error)
	// DeleteNotification removes and returns the notification, or a NotFound error.
	DeleteNotification(ctx context.Context, id string) (Notification, error)
	ClearNotifications(ctx context.Context) error
}

// SettingsStore holds the client settings document.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// Store is the full persistence contract of the engine.
type Store interface {
	BoardStore
	EventLog
	NotificationStore
	SettingsStore
}

// Fanout receives every event and notification after it is persisted. Calls must not block.
type Fanout interface {
	ForwardEvent(ev Event)
	ForwardNotification(n Notification)
}

// BoardService owns the board document's invariants and the side effects of every mutation.
//
// Each mutation loads the document, changes an in-memory copy, saves it whole and
// then records events and notifications. Mutations are serialized within the
// process; separate processes sharing one store still overwrite each other.
type BoardService struct {
	store  Store
	now    func() time.Time
	newID  func(prefix string) string
	fanout Fanout
	logger *log.Logger

	mu sync.Mutex
}

// Option configures a BoardService.
type Option func(*BoardService)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *BoardService) { s.now = now }
}

// WithIDs replaces the identifier generator.
func WithIDs(newID func(prefix string) string) Option {
	return func(s *BoardService) { s.newID = newID }
}

// WithFanout forwards persisted events and notifications to f.
func WithFanout(f Fanout) Option {
	return func(s *BoardService) { s.fanout = f }
}

// WithLogger sets the logger used for side-effect failures.
func WithLogger(l *log.Logger) Option {
	return func(s *BoardService) { s.logger = l }
}

// NewBoardService creates the engine over st.
func NewBoardService(st Store, opts ...Option) *BoardService {
	if st == nil {
		panic("domain.NewBoardService: store is nil")
	}
	s := &BoardService{
		store:  st,
		now:    Now,
		newID:  NewID,
		logger: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Board returns the current board document.
func (s *BoardService) Board(ctx context.Context) (*Board, error) {
	return s.store.LoadBoard(ctx)
}

// Metrics derives board metrics from a freshly loaded document.
func (s *BoardService) Metrics(ctx context.Context) (Metrics, error) {
	b, err := s.store.LoadBoard(ctx)
	if err != nil {
		return Metrics{}, err
	}
	return ComputeMetrics(b, s.now()), nil
}

// Snapshot copies the board document to a timestamped backup.
func (s *BoardService) Snapshot(ctx context.Context) (Backup, error) {
	return s.store.Snapshot(ctx)
}

// Events queries the audit log.
func (s *BoardService) Events(ctx context.Context, f EventFilter) ([]Event, error) {
	return s.store.QueryEvents(ctx, f)
}

// Notifications lists pending notifications in creation order.
func (s *BoardService) Notifications(ctx context.Context) ([]Notification, error) {
	return s.store.ListNotifications(ctx)
}

// AcknowledgeNotification deletes one notification and returns it.
func (s *BoardService) AcknowledgeNotification(ctx context.Context, id string) (Notification, error) {
	return s.store.DeleteNotification(ctx, id)
}

// ClearNotifications deletes every pending notification.
func (s *BoardService) ClearNotifications(ctx context.Context) error {
	return s.store.ClearNotifications(ctx)
}

// Settings returns the stored client settings.
func (s *BoardService) Settings(ctx context.Context) (Settings, error) {
	return s.store.LoadSettings(ctx)
}

// SaveSettings replaces the client settings.
func (s *BoardService) SaveSettings(ctx context.Context, st Settings) error {
	return s.store.SaveSettings(ctx, st)
}

// effects collects the side effects of one mutation until the board is saved.
type effects struct {
	events        []Event
	notifications []Notification
}

func (s *BoardService) event(fx *effects, typ EventType, actor string, p EventPayload) {
	if actor == "" {
		actor = SystemAuthor
	}
	fx.events = append(fx.events, Event{
		ID:        s.newID("evt"),
		Type:      typ,
		Timestamp: s.now(),
		Actor:     actor,
		Payload:   p,
	})
}

func (s *BoardService) notify(fx *effects, typ NotificationType, p NotificationPayload) {
	fx.notifications = append(fx.notifications, Notification{
		ID:        s.newID("notif"),
		Type:      typ,
		Payload:   p,
		CreatedAt: s.now(),
	})
}

// commit saves the board and then records the collected side effects. Failures
// recording side effects are logged: the board change has already happened.
func (s *BoardService) commit(ctx context.Context, b *Board, fx *effects) error {
	if err := s.store.SaveBoard(ctx, b); err != nil {
		return err
	}
	for _, ev := range fx.events {
		if err := s.store.AppendEvent(ctx, ev); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{"event": ev.ID, "type": ev.Type}).Error("append event failed")
			continue
		}
		if s.fanout != nil {
			s.fanout.ForwardEvent(ev)
		}
	}
	for _, n := range fx.notifications {
		if err := s.store.AddNotification(ctx, n); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{"notification": n.ID, "type": n.Type}).Error("add notification failed")
			continue
		}
		if s.fanout != nil {
			s.fanout.ForwardNotification(n)
		}
	}
	return nil
}
