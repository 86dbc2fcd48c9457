// Package jobs runs lesson analyses as background tasks on an asynq queue
// backed by Redis.
//
// The HTTP API enqueues one task per submitted video; worker processes pick
// tasks up, run the full analysis pipeline, and persist the result. Task IDs
// are deterministic per analysis so that re-submitting the same analysis does
// not produce duplicate work.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
)

// DefaultQueue is the asynq queue name used when none is configured.
const DefaultQueue = "analyses"

// defaultConcurrency bounds parallel analyses per worker process. Video
// decoding and landmark detection are heavy, so the default is deliberately
// low.
const defaultConcurrency = 2

// Queue wraps an asynq client and server sharing one Redis connection
// configuration. The same Queue can enqueue tasks and serve as a worker.
type Queue struct {
	name      string
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

// NewQueue creates a queue talking to the Redis instance at redisAddr.
// concurrency <= 0 selects the default; queue == "" selects [DefaultQueue].
func NewQueue(redisAddr string, concurrency int, queue string) *Queue {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if queue == "" {
		queue = DefaultQueue
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      slogAsynqAdapter{},
	})

	return &Queue{
		name:      queue,
		client:    asynq.NewClient(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
	}
}

// Name returns the asynq queue name tasks are enqueued on.
func (q *Queue) Name() string { return q.name }

// RegisterHandler routes tasks of taskType to handler.
func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

// Enqueue marshals payload as JSON and enqueues a task of taskType.
// It returns the asynq task ID.
func (q *Queue) Enqueue(taskType string, payload any, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jobs: marshal payload: %w", err)
	}
	opts = append(opts, asynq.Queue(q.name))
	info, err := q.client.Enqueue(asynq.NewTask(taskType, data, opts...))
	if err != nil {
		return "", fmt.Errorf("jobs: enqueue: %w", err)
	}
	return info.ID, nil
}

// EnqueueUnique enqueues a task with the deterministic TaskID uniqueID so
// that the same analysis cannot be queued twice. If a finished task with the
// same ID is still lingering in Redis it is deleted and the enqueue retried;
// if the task is pending or actively running, the enqueue is skipped and the
// existing ID returned.
func (q *Queue) EnqueueUnique(taskType string, payload any, uniqueID string, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jobs: marshal payload: %w", err)
	}
	opts = append(opts, asynq.Queue(q.name), asynq.TaskID(uniqueID))
	task := asynq.NewTask(taskType, data, opts...)

	info, err := q.client.Enqueue(task)
	if err == nil {
		return info.ID, nil
	}
	if !isTaskConflict(err) {
		return "", fmt.Errorf("jobs: enqueue: %w", err)
	}

	// ID conflict. A completed or archived task can be cleared and replaced.
	if delErr := q.inspector.DeleteTask(q.name, uniqueID); delErr == nil {
		slog.Debug("jobs: cleared finished task before re-enqueue", "task_id", uniqueID)
		info, err = q.client.Enqueue(task)
		if err == nil {
			return info.ID, nil
		}
	}

	if isTaskConflict(err) {
		slog.Info("jobs: task already queued, skipping", "type", taskType, "task_id", uniqueID)
		return uniqueID, nil
	}
	return "", fmt.Errorf("jobs: enqueue: %w", err)
}

// Start begins processing tasks with the registered handlers. It returns
// immediately; workers run in background goroutines until [Queue.Stop].
func (q *Queue) Start() error {
	slog.Info("jobs: worker starting", "queue", q.name)
	if err := q.server.Start(q.mux); err != nil {
		return fmt.Errorf("jobs: start worker: %w", err)
	}
	return nil
}

// Stop shuts down the worker, waiting for in-flight tasks, and closes the
// client and inspector connections.
func (q *Queue) Stop() {
	q.server.Shutdown()
	if err := q.client.Close(); err != nil {
		slog.Warn("jobs: close client", "err", err)
	}
	if err := q.inspector.Close(); err != nil {
		slog.Warn("jobs: close inspector", "err", err)
	}
}

// isTaskConflict reports whether err indicates a duplicate task ID, using
// errors.Is for the sentinel values and a string fallback for wrapped
// variants asynq does not expose.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// slogAsynqAdapter forwards asynq's internal logging to slog.
type slogAsynqAdapter struct{}

func (slogAsynqAdapter) Debug(args ...any) { slog.Debug(fmt.Sprint(args...)) }
func (slogAsynqAdapter) Info(args ...any)  { slog.Info(fmt.Sprint(args...)) }
func (slogAsynqAdapter) Warn(args ...any)  { slog.Warn(fmt.Sprint(args...)) }
func (slogAsynqAdapter) Error(args ...any) { slog.Error(fmt.Sprint(args...)) }
func (slogAsynqAdapter) Fatal(args ...any) { slog.Error(fmt.Sprint(args...)) }
