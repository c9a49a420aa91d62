// Package notify moves domain events onto background tasks and handles them in the worker.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/repo"
)

// TaskPrefix prefixes the asynq task type of every forwarded event.
const TaskPrefix = "event:"

// QueueName is the asynq queue events are enqueued on.
const QueueName = "notifications"

// Enqueuer is the part of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskType returns the asynq task type for topic.
func TaskType(topic string) string {
	return TaskPrefix + topic
}

// TaskNotifier forwards selected domain events to asynq. It implements events.Notifier.
type TaskNotifier struct {
	Client   Enqueuer
	Topics   map[string]bool
	MaxRetry int
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// NewTaskNotifier forwards the given topics. An empty list forwards everything.
func NewTaskNotifier(client Enqueuer, topics []string, logger zerolog.Logger) *TaskNotifier {
	n := &TaskNotifier{Client: client, MaxRetry: 5, Timeout: 30 * time.Second, Logger: logger}
	if len(topics) > 0 {
		n.Topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			n.Topics[strings.TrimSpace(t)] = true
		}
	}
	return n
}

// taskPayload is the wire form of a forwarded event.
type taskPayload struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Notify enqueues event. The event id doubles as the task id so replays are dropped.
func (n *TaskNotifier) Notify(ctx context.Context, event repo.DomainEvent) error {
	if n == nil || n.Client == nil {
		return nil
	}
	if n.Topics != nil && !n.Topics[event.Topic] {
		return nil
	}
	body, err := json.Marshal(taskPayload{
		ID:          event.ID,
		Topic:       event.Topic,
		AggregateID: event.AggregateID,
		Payload:     json.RawMessage(event.Payload),
		OccurredAt:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("notify: encode task: %w", err)
	}
	opts := []asynq.Option{asynq.Queue(QueueName), asynq.MaxRetry(n.MaxRetry)}
	if n.Timeout > 0 {
		opts = append(opts, asynq.Timeout(n.Timeout))
	}
	if event.ID != "" {
		opts = append(opts, asynq.TaskID(event.ID))
	}
	info, err := n.Client.EnqueueContext(ctx, asynq.NewTask(TaskType(event.Topic), body), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("notify: enqueue %s: %w", event.Topic, err)
	}
	n.Logger.Debug().Str("topic", event.Topic).Str("task_id", info.ID).Msg("event enqueued")
	return nil
}

// TaskHandler processes forwarded events in the worker.
type TaskHandler struct {
	Notifiers []events.Notifier
	Logger    zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p taskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("notify: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.Topic == "" {
		p.Topic = strings.TrimPrefix(t.Type(), TaskPrefix)
	}
	event := repo.DomainEvent{
		ID:          p.ID,
		Topic:       p.Topic,
		AggregateID: p.AggregateID,
		Payload:     []byte(p.Payload),
		OccurredAt:  p.OccurredAt,
	}
	h.Logger.Info().Str("topic", event.Topic).Str("aggregate_id", event.AggregateID).Str("event_id", event.ID).Msg("event received")
	var joined error
	for _, n := range h.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

// Register mounts h on mux for every event task.
func (h TaskHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskPrefix, h)
}
