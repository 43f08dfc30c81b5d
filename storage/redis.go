package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/kennyklee/jimmy-rocks/domain"
)

// RedisStore keeps the board documents in Redis so several API instances can
// share one board. The board and settings are plain JSON strings; events and
// notifications are lists in append order.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store whose keys all start with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		panic("storage.NewRedisStore: client is nil")
	}
	if prefix == "" {
		prefix = "kanban"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(name string) string { return r.prefix + ":" + name }

func (r *RedisStore) LoadBoard(ctx context.Context) (*domain.Board, error) {
	data, err := r.client.Get(ctx, r.key("board")).Bytes()
	if errors.Is(err, redis.Nil) {
		b := domain.NewBoard(domain.Now())
		if err := r.SaveBoard(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}
	if err != nil {
		return nil, domain.StorageError("get board", err)
	}
	return decodeBoard(data)
}

func (r *RedisStore) SaveBoard(ctx context.Context, b *domain.Board) error {
	b.LastUpdated = domain.Now()
	data, err := sonic.Marshal(b)
	if err != nil {
		return domain.StorageError("encode board", err)
	}
	if err := r.client.Set(ctx, r.key("board"), data, 0).Err(); err != nil {
		return domain.StorageError("set board", err)
	}
	return nil
}

// Snapshot copies the board into a backup key and records it in the backup index.
func (r *RedisStore) Snapshot(ctx context.Context) (domain.Backup, error) {
	b, err := r.LoadBoard(ctx)
	if err != nil {
		return domain.Backup{}, err
	}
	data, err := sonic.Marshal(b)
	if err != nil {
		return domain.Backup{}, domain.StorageError("encode board", err)
	}
	name := BackupName(domain.Now())
	dst := r.key("backup:" + name)
	if err := r.client.Set(ctx, dst, data, 0).Err(); err != nil {
		return domain.Backup{}, domain.StorageError("write backup", err)
	}
	if err := r.client.RPush(ctx, r.key("backups"), name).Err(); err != nil {
		return domain.Backup{}, domain.StorageError("index backup", err)
	}
	return domain.Backup{Name: name, Location: "redis://" + dst}, nil
}

// AppendEvent pushes the event and trims the list to the newest MaxEvents in one transaction.
func (r *RedisStore) AppendEvent(ctx context.Context, ev domain.Event) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return domain.StorageError("encode event", err)
	}
	key := r.key("events")
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -domain.MaxEvents, -1)
		return nil
	})
	if err != nil {
		return domain.StorageError("append event", err)
	}
	return nil
}

func (r *RedisStore) QueryEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	raw, err := r.client.LRange(ctx, r.key("events"), 0, -1).Result()
	if err != nil {
		return nil, domain.StorageError("list events", err)
	}
	events := make([]domain.Event, 0, len(raw))
	for _, s := range raw {
		var ev domain.Event
		if err := sonic.UnmarshalString(s, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return f.Apply(events), nil
}

func (r *RedisStore) AddNotification(ctx context.Context, n domain.Notification) error {
	data, err := sonic.Marshal(n)
	if err != nil {
		return domain.StorageError("encode notification", err)
	}
	if err := r.client.RPush(ctx, r.key("notifications"), data).Err(); err != nil {
		return domain.StorageError("push notification", err)
	}
	return nil
}

func (r *RedisStore) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	out, _, err := r.notifications(ctx)
	return out, err
}

func (r *RedisStore) notifications(ctx context.Context) ([]domain.Notification, []string, error) {
	raw, err := r.client.LRange(ctx, r.key("notifications"), 0, -1).Result()
	if err != nil {
		return nil, nil, domain.StorageError("list notifications", err)
	}
	out := make([]domain.Notification, 0, len(raw))
	kept := make([]string, 0, len(raw))
	for _, s := range raw {
		var n domain.Notification
		if err := sonic.UnmarshalString(s, &n); err != nil {
			continue
		}
		out = append(out, n)
		kept = append(kept, s)
	}
	return out, kept, nil
}

// DeleteNotification removes the exact stored entry so concurrent appends are not lost.
func (r *RedisStore) DeleteNotification(ctx context.Context, id string) (domain.Notification, error) {
	list, raw, err := r.notifications(ctx)
	if err != nil {
		return domain.Notification{}, err
	}
	for i, n := range list {
		if n.ID != id {
			continue
		}
		removed, err := r.client.LRem(ctx, r.key("notifications"), 1, raw[i]).Result()
		if err != nil {
			return domain.Notification{}, domain.StorageError("remove notification", err)
		}
		if removed == 0 {
			break
		}
		return n, nil
	}
	return domain.Notification{}, domain.NotFoundError("Notification")
}

func (r *RedisStore) ClearNotifications(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key("notifications")).Err(); err != nil {
		return domain.StorageError("clear notifications", err)
	}
	return nil
}

func (r *RedisStore) LoadSettings(ctx context.Context) (domain.Settings, error) {
	data, err := r.client.Get(ctx, r.key("settings")).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.EmptySettings, nil
	}
	if err != nil {
		return nil, domain.StorageError("get settings", err)
	}
	return domain.Settings(data), nil
}

func (r *RedisStore) SaveSettings(ctx context.Context, s domain.Settings) error {
	if err := r.client.Set(ctx, r.key("settings"), []byte(s), 0).Err(); err != nil {
		return domain.StorageError("set settings", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return domain.StorageError("ping redis", err)
	}
	return nil
}
