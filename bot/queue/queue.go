// Package queue hands tasks to the asynchronous worker queue. Dispatch is
// fire-and-forget: callers never observe a task's result.
package queue

import (
	"context"
	"time"
)

// Task is the unit handed to the queue.
type Task struct {
	Id   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// Delay before the consumer should start processing the task.
	DelaySeconds int `json:"delay_seconds"`
}

// ReadyAt is the earliest time the task should be processed.
func (t Task) ReadyAt() time.Time {
	return t.EnqueuedAt.Add(time.Duration(t.DelaySeconds) * time.Second)
}

type Queue interface {
	Enqueue(ctx context.Context, task string, args map[string]interface{}, delay time.Duration) error
}
