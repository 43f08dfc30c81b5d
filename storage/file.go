package storage

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"

	"github.com/kennyklee/jimmy-rocks/domain"
)

const (
	boardFile         = "board.json"
	eventsFile        = "events.json"
	notificationsFile = "notifications.json"
	settingsFile      = "settings.json"
	backupDir         = "backups"
)

type eventsDoc struct {
	Events []domain.Event `json:"events"`
}

type notificationsDoc struct {
	Notifications []domain.Notification `json:"notifications"`
}

// FileStore keeps each document as indented JSON in one directory. Writes
// replace the whole file atomically.
type FileStore struct {
	dir string
	log *log.Logger

	// mu guards the read-modify-write cycles of the event and notification logs.
	mu sync.Mutex
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, logger *log.Logger) (*FileStore, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.StorageError("create data dir", err)
	}
	return &FileStore{dir: dir, log: logger}, nil
}

// Dir is the directory holding the documents.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(name string) string { return filepath.Join(s.dir, name) }

func (s *FileStore) LoadBoard(ctx context.Context) (*domain.Board, error) {
	data, err := os.ReadFile(s.path(boardFile))
	if errors.Is(err, fs.ErrNotExist) {
		b := domain.NewBoard(domain.Now())
		if err := s.SaveBoard(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}
	if err != nil {
		return nil, domain.StorageError("read board", err)
	}
	return decodeBoard(data)
}

func (s *FileStore) SaveBoard(ctx context.Context, b *domain.Board) error {
	b.LastUpdated = domain.Now()
	return s.writeJSON(boardFile, b)
}

// Snapshot copies board.json into the backups directory.
func (s *FileStore) Snapshot(ctx context.Context) (domain.Backup, error) {
	data, err := os.ReadFile(s.path(boardFile))
	if errors.Is(err, fs.ErrNotExist) {
		if _, err := s.LoadBoard(ctx); err != nil {
			return domain.Backup{}, err
		}
		data, err = os.ReadFile(s.path(boardFile))
	}
	if err != nil {
		return domain.Backup{}, domain.StorageError("read board", err)
	}
	if err := os.MkdirAll(s.path(backupDir), 0o755); err != nil {
		return domain.Backup{}, domain.StorageError("create backup dir", err)
	}
	name := BackupName(domain.Now())
	dst := filepath.Join(s.path(backupDir), name)
	if err := atomic.WriteFile(dst, bytes.NewReader(data)); err != nil {
		return domain.Backup{}, domain.StorageError("write backup", err)
	}
	return domain.Backup{Name: name, Location: dst}, nil
}

func (s *FileStore) AppendEvent(ctx context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc eventsDoc
	s.readTolerant(eventsFile, &doc)
	doc.Events = domain.CapEvents(append(doc.Events, ev))
	return s.writeJSON(eventsFile, doc)
}

func (s *FileStore) QueryEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	s.mu.Lock()
	var doc eventsDoc
	s.readTolerant(eventsFile, &doc)
	s.mu.Unlock()
	return f.Apply(doc.Events), nil
}

func (s *FileStore) AddNotification(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc notificationsDoc
	s.readTolerant(notificationsFile, &doc)
	doc.Notifications = append(doc.Notifications, n)
	return s.writeJSON(notificationsFile, doc)
}

func (s *FileStore) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc notificationsDoc
	s.readTolerant(notificationsFile, &doc)
	if doc.Notifications == nil {
		return []domain.Notification{}, nil
	}
	return doc.Notifications, nil
}

func (s *FileStore) DeleteNotification(ctx context.Context, id string) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc notificationsDoc
	s.readTolerant(notificationsFile, &doc)
	for i, n := range doc.Notifications {
		if n.ID != id {
			continue
		}
		doc.Notifications = append(doc.Notifications[:i:i], doc.Notifications[i+1:]...)
		if err := s.writeJSON(notificationsFile, doc); err != nil {
			return domain.Notification{}, err
		}
		return n, nil
	}
	return domain.Notification{}, domain.NotFoundError("Notification")
}

func (s *FileStore) ClearNotifications(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(notificationsFile, notificationsDoc{Notifications: []domain.Notification{}})
}

func (s *FileStore) LoadSettings(ctx context.Context) (domain.Settings, error) {
	data, err := os.ReadFile(s.path(settingsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.EmptySettings, nil
	}
	if err != nil {
		return nil, domain.StorageError("read settings", err)
	}
	if !sonic.Valid(data) {
		s.log.Warnf("settings file is not valid JSON, using defaults: %s", s.path(settingsFile))
		return domain.EmptySettings, nil
	}
	return domain.Settings(data), nil
}

func (s *FileStore) SaveSettings(ctx context.Context, st domain.Settings) error {
	return s.writeJSON(settingsFile, st)
}

// Ping reports whether the data directory is still reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return domain.StorageError("stat data dir", err)
	}
	return nil
}

// readTolerant decodes name into v. Missing or corrupt logs decode as empty.
func (s *FileStore) readTolerant(name string, v any) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.log.WithError(err).Warnf("read %s failed, treating as empty", name)
		return
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		s.log.WithError(err).Warnf("decode %s failed, treating as empty", name)
	}
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.StorageError("encode "+name, err)
	}
	if err := atomic.WriteFile(s.path(name), bytes.NewReader(data)); err != nil {
		return domain.StorageError("write "+name, err)
	}
	return nil
}

func decodeBoard(data []byte) (*domain.Board, error) {
	var b domain.Board
	if err := sonic.Unmarshal(data, &b); err != nil {
		return nil, domain.StorageError("decode board", err)
	}
	b.Normalize()
	return &b, nil
}

// BackupName is backup-<RFC 3339 millis timestamp with ':' and '.' replaced by '-'>.json.
func BackupName(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return "backup-" + strings.NewReplacer(":", "-", ".", "-").Replace(ts) + ".json"
}
