package storage

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kennyklee/jimmy-rocks/domain"
)

// ForwarderConfig sizes the forwarding worker pool.
type ForwarderConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

type forwardJob struct {
	event        *domain.Event
	notification *domain.Notification
}

// Forwarder hands stored events and notifications to a Sink on a bounded
// worker pool. When the buffer stays full past HandoffTimeout the job is
// dropped and logged; the local store remains the source of truth.
type Forwarder struct {
	sink Sink
	cfg  ForwarderConfig
	log  *log.Logger

	jobs    chan forwardJob
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped int
}

// NewForwarder starts cfg.Workers goroutines forwarding to sink.
func NewForwarder(sink Sink, cfg ForwarderConfig, logger *log.Logger) *Forwarder {
	if sink == nil {
		panic("storage.NewForwarder: sink is nil")
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	f := &Forwarder{sink: sink, cfg: cfg, log: logger, jobs: make(chan forwardJob, cfg.Buffer)}
	for i := 0; i < cfg.Workers; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}
	logger.Infof("forwarder started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return f
}

func (f *Forwarder) ForwardEvent(ev domain.Event) {
	f.submit(forwardJob{event: &ev})
}

func (f *Forwarder) ForwardNotification(n domain.Notification) {
	f.submit(forwardJob{notification: &n})
}

// Dropped is the number of jobs discarded because the buffer was full.
func (f *Forwarder) Dropped() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

// Close stops accepting work and waits for queued jobs to finish.
func (f *Forwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.jobs)
	f.mu.Unlock()
	f.wg.Wait()
}

func (f *Forwarder) submit(job forwardJob) {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return
	}
	ok := f.handoff(job)
	f.mu.RUnlock()
	if ok {
		return
	}
	f.mu.Lock()
	f.dropped++
	f.mu.Unlock()
	f.log.Warnf("forward buffer full, dropping %s", job.describe())
}

func (f *Forwarder) handoff(job forwardJob) bool {
	select {
	case f.jobs <- job:
		return true
	default:
	}
	if f.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(f.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case f.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}

func (f *Forwarder) worker(id int) {
	defer f.wg.Done()
	for j := range f.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.Timeout)
		var err error
		if j.event != nil {
			err = f.sink.ArchiveEvent(ctx, *j.event)
		} else {
			err = f.sink.PublishNotification(ctx, *j.notification)
		}
		cancel()
		if err != nil {
			f.log.Errorf("forward failed, err: %v, %s, worker: %d", err, j.describe(), id)
		}
	}
}

func (j forwardJob) describe() string {
	if j.event != nil {
		return "event " + j.event.ID
	}
	return "notification " + j.notification.ID
}
