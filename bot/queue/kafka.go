package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type KafkaQueue struct {
	writer *kafka.Writer
}

func NewKafkaQueue(brokers []string, topic string) *KafkaQueue {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaQueue{writer: writer}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, taskName string, args map[string]interface{}, delay time.Duration) error {
	task := Task{
		Id:           uuid.New().String(),
		Name:         taskName,
		Args:         args,
		EnqueuedAt:   time.Now().UTC(),
		DelaySeconds: int(delay / time.Second),
	}

	taskBytes, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("error marshaling task %v: %w", taskName, err)
	}

	message := kafka.Message{
		Key:   []byte(task.Id),
		Value: taskBytes,
		Headers: []kafka.Header{
			{Key: "task-name", Value: []byte(taskName)},
			{Key: "delay-seconds", Value: []byte(strconv.Itoa(task.DelaySeconds))},
		},
	}

	if err := q.writer.WriteMessages(ctx, message); err != nil {
		slog.Error("error enqueueing task", "task", taskName, "task_id", task.Id, "error", err)
		return err
	}

	slog.Info("task enqueued", "task", taskName, "task_id", task.Id, "delay_seconds", task.DelaySeconds)
	return nil
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

type TaskHandler func(ctx context.Context, task Task) error

type KafkaConsumer struct {
	reader *kafka.Reader
}

func NewKafkaConsumer(brokers []string, topic, groupID string) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	return &KafkaConsumer{reader: reader}
}

// Consume dispatches tasks to the handler until the context is canceled.
// Kafka has no native delayed delivery, so the delay requested at enqueue
// time is honored here by waiting until the task is ready.
func (c *KafkaConsumer) Consume(ctx context.Context, handler TaskHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("error fetching task from queue", "error", err)
			continue
		}

		var task Task
		if err := json.Unmarshal(message.Value, &task); err != nil {
			slog.Error("error unmarshaling task, skipping", "error", err)
			if err := c.reader.CommitMessages(ctx, message); err != nil {
				slog.Error("error committing malformed task", "error", err)
			}
			continue
		}

		if wait := time.Until(task.ReadyAt()); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := handler(ctx, task); err != nil {
			slog.Error("error processing task", "task", task.Name, "task_id", task.Id, "error", err)
			// not committed, will be redelivered
			continue
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			slog.Error("error committing task", "task_id", task.Id, "error", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
