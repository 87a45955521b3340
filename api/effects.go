package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

type effectJob struct {
	activity      *domain.Activity
	notifications []domain.Notification
}

// Recorder appends activity entries and notifications on a bounded worker
// pool, fire-and-forget relative to the HTTP response that produced them.
// When the buffer is saturated the job runs inline on the caller.
type Recorder struct {
	store   Storage
	logger  *log.Logger
	jobs    chan effectJob
	timeout time.Duration
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// NewRecorder starts the side-effect workers. Pool sizing comes from
// EFFECT_WORKERS / EFFECT_BUFFER / EFFECT_TIMEOUT.
func NewRecorder(store Storage, logger *log.Logger) *Recorder {
	if logger == nil {
		panic("Logger is not initialized")
	}
	r := &Recorder{
		store:   store,
		logger:  logger,
		timeout: envDur("EFFECT_TIMEOUT", 30*time.Second),
	}
	workers := envInt("EFFECT_WORKERS", 8)
	r.jobs = make(chan effectJob, envInt("EFFECT_BUFFER", 1024))
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	logger.Infof("effect recorder started, workers: %d, buffer: %d", workers, cap(r.jobs))
	return r
}

// Record schedules one activity entry plus any notifications it implies.
func (r *Recorder) Record(activity *domain.Activity, notifications ...domain.Notification) {
	job := effectJob{activity: activity, notifications: notifications}
	if r.closed.Load() {
		r.run(job)
		return
	}
	select {
	case r.jobs <- job:
	default:
		r.logger.Warn("effect buffer saturated, recording inline")
		r.run(job)
	}
}

// Close stops the workers after draining queued jobs.
func (r *Recorder) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.jobs)
	}
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for job := range r.jobs {
		r.run(job)
	}
}

func (r *Recorder) run(job effectJob) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if job.activity != nil {
		if err := r.store.InsertActivity(ctx, job.activity); err != nil {
			r.logger.Errorf("record activity %s: %v", job.activity.Action, err)
		}
	}
	for i := range job.notifications {
		n := job.notifications[i]
		if err := r.store.InsertNotification(ctx, &n); err != nil {
			r.logger.Errorf("record notification for %s: %v", n.Recipient, err)
		}
	}
}

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envDur(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

var lastEventStamp int64

// nextEventTime returns a strictly increasing timestamp for activity entries
// so same-millisecond writes keep a stable order.
func nextEventTime() time.Time {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastEventStamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastEventStamp, last, now) {
			return time.Unix(0, now).UTC()
		}
	}
}
