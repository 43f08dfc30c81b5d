package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// memStore keeps the board encoded so every load hands out a fresh copy.
type memStore struct {
	mu            sync.Mutex
	board         []byte
	events        []Event
	notifications []Notification
	settings      Settings
	saves         int
	saveErr       error
	eventErr      error
}

func (m *memStore) LoadBoard(ctx context.Context) (*Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.board == nil {
		return NewBoard(time.Unix(0, 0).UTC()), nil
	}
	var b Board
	if err := sonic.Unmarshal(m.board, &b); err != nil {
		return nil, StorageError("decode board", err)
	}
	b.Normalize()
	return &b, nil
}

func (m *memStore) SaveBoard(ctx context.Context, b *Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	b.LastUpdated = Now()
	raw, err := sonic.Marshal(b)
	if err != nil {
		return StorageError("encode board", err)
	}
	m.board = raw
	m.saves++
	return nil
}

func (m *memStore) Snapshot(ctx context.Context) (Backup, error) {
	return Backup{Name: "backup-test.json", Location: "mem://backup-test.json"}, nil
}

func (m *memStore) AppendEvent(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eventErr != nil {
		return m.eventErr
	}
	m.events = CapEvents(append(m.events, ev))
	return nil
}

func (m *memStore) QueryEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f.Apply(m.events), nil
}

func (m *memStore) AddNotification(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *memStore) ListNotifications(ctx context.Context) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.notifications...), nil
}

func (m *memStore) DeleteNotification(ctx context.Context, id string) (Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notifications {
		if n.ID == id {
			m.notifications = append(m.notifications[:i:i], m.notifications[i+1:]...)
			return n, nil
		}
	}
	return Notification{}, NotFoundError("Notification")
}

func (m *memStore) ClearNotifications(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = nil
	return nil
}

func (m *memStore) LoadSettings(ctx context.Context) (Settings, error) {
	if m.settings == nil {
		return EmptySettings, nil
	}
	return m.settings, nil
}

func (m *memStore) SaveSettings(ctx context.Context, s Settings) error {
	m.settings = s
	return nil
}

func (m *memStore) eventsOf(typ EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (m *memStore) notificationsOf(typ NotificationType) []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.notifications {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func seqIDs() func(string) string {
	var mu sync.Mutex
	n := 0
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%04d", prefix, n)
	}
}

var errBoom = errors.New("boom")

func newTestService() (*BoardService, *memStore, *stepClock) {
	st := &memStore{}
	clk := &stepClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Millisecond}
	return NewBoardService(st, WithClock(clk.Now), WithIDs(seqIDs())), st, clk
}
