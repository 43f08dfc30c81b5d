package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/kennyklee/jimmy-rocks/domain"
)

// Sink receives events and notifications after they are stored locally.
type Sink interface {
	ArchiveEvent(ctx context.Context, ev domain.Event) error
	PublishNotification(ctx context.Context, n domain.Notification) error
}

// AzureSink archives every event to a table, one partition per UTC day, and
// mirrors notifications onto a queue for out-of-process consumers.
type AzureSink struct {
	archive *aztables.Client
	queue   *azqueue.QueueClient
}

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// NewAzureSink connects to the storage account. Either name may be empty to
// disable that half of the sink.
func NewAzureSink(connStr, archiveTable, notificationQueue string) (*AzureSink, error) {
	s := &AzureSink{}
	if archiveTable != "" {
		svc, err := aztables.NewServiceClientFromConnectionString(connStr, &aztables.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    3,
					TryTimeout:    time.Minute,
					RetryDelay:    time.Second,
					MaxRetryDelay: time.Second * 15,
					StatusCodes:   retryStatusCodes,
				},
			},
		})
		if err != nil {
			return nil, err
		}
		s.archive = svc.NewClient(archiveTable)
	}
	if notificationQueue != "" {
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, notificationQueue, &azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    5,
					TryTimeout:    time.Minute,
					RetryDelay:    time.Second,
					MaxRetryDelay: time.Second * 60,
					StatusCodes:   retryStatusCodes,
				},
			},
		})
		if err != nil {
			return nil, err
		}
		s.queue = q
	}
	return s, nil
}

// Ensure creates the archive table and notification queue when missing.
func (s *AzureSink) Ensure(ctx context.Context) error {
	if s.archive != nil {
		if _, err := s.archive.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	if s.queue != nil {
		if _, err := s.queue.Create(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
				return err
			}
		}
	}
	return nil
}

type eventEntity struct {
	aztables.Entity
	Type       string    `json:"Type"`
	Actor      string    `json:"Actor"`
	ItemID     string    `json:"ItemId"`
	OccurredAt time.Time `json:"OccurredAt"`
	Payload    string    `json:"Payload"`
}

func newEventEntity(ev domain.Event) (eventEntity, error) {
	payload, err := sonic.MarshalString(ev.Payload)
	if err != nil {
		return eventEntity{}, err
	}
	return eventEntity{
		Entity: aztables.Entity{
			PartitionKey: ev.Timestamp.UTC().Format(time.DateOnly),
			RowKey:       ev.ID,
		},
		Type:       string(ev.Type),
		Actor:      ev.Actor,
		ItemID:     ev.Payload.ItemID,
		OccurredAt: ev.Timestamp,
		Payload:    payload,
	}, nil
}

// ArchiveEvent upserts the event so a retried forward does not fail on a duplicate row.
func (s *AzureSink) ArchiveEvent(ctx context.Context, ev domain.Event) error {
	if s.archive == nil {
		return nil
	}
	ent, err := newEventEntity(ev)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.archive.UpsertEntity(ctx, data, nil)
	return err
}

// PublishNotification enqueues the notification as JSON.
func (s *AzureSink) PublishNotification(ctx context.Context, n domain.Notification) error {
	if s.queue == nil {
		return nil
	}
	data, err := sonic.MarshalString(n)
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueMessage(ctx, data, nil)
	return err
}
