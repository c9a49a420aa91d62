package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/repo/memstore"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

type recordingMailer struct {
	to, subject, body []string
}

func (m *recordingMailer) Send(to, subject, body string) error {
	m.to = append(m.to, to)
	m.subject = append(m.subject, subject)
	m.body = append(m.body, body)
	return nil
}

func TestTaskNotifierFiltersTopics(t *testing.T) {
	client := &fakeEnqueuer{}
	n := NewTaskNotifier(client, []string{events.TopicOrderCreated}, zerolog.Nop())

	require.NoError(t, n.Notify(context.Background(), repo.DomainEvent{ID: "e1", Topic: events.TopicCartMerged}))
	require.Empty(t, client.tasks)

	require.NoError(t, n.Notify(context.Background(), repo.DomainEvent{ID: "e2", Topic: events.TopicOrderCreated, AggregateID: "o1", Payload: []byte(`{"orderId":"o1"}`)}))
	require.Len(t, client.tasks, 1)
	require.Equal(t, "event:order.created", client.tasks[0].Type())

	var p taskPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &p))
	require.Equal(t, "o1", p.AggregateID)
	require.JSONEq(t, `{"orderId":"o1"}`, string(p.Payload))
}

func TestTaskNotifierIgnoresDuplicates(t *testing.T) {
	n := NewTaskNotifier(&fakeEnqueuer{err: asynq.ErrTaskIDConflict}, nil, zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), repo.DomainEvent{ID: "e1", Topic: events.TopicOrderCreated}))

	n = NewTaskNotifier(&fakeEnqueuer{err: errors.New("redis down")}, nil, zerolog.Nop())
	require.Error(t, n.Notify(context.Background(), repo.DomainEvent{ID: "e1", Topic: events.TopicOrderCreated}))
}

func TestBusForwardsThroughTaskNotifier(t *testing.T) {
	store := memstore.New()
	client := &fakeEnqueuer{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{NewTaskNotifier(client, events.DefaultTopics(), zerolog.Nop())}}

	bus.Publish(context.Background(), events.TopicOrderCreated, "o1", events.OrderCreated{OrderID: "o1", UserID: "ada@example.com", TotalAmount: "90.49"})
	require.Len(t, store.RecordedEvents(), 1)
	require.Len(t, client.tasks, 1)
}

func TestTaskHandlerDeliversEmail(t *testing.T) {
	mailer := &recordingMailer{}
	h := TaskHandler{
		Notifiers: []events.Notifier{EmailNotifier{Mail: mailer, Enabled: true}},
		Logger:    zerolog.Nop(),
	}
	body, err := json.Marshal(taskPayload{
		ID:          "e1",
		Topic:       events.TopicOrderCreated,
		AggregateID: "o1",
		Payload:     json.RawMessage(`{"orderId":"o1","userId":"ada@example.com","totalAmount":"90.49"}`),
		OccurredAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(TaskType(events.TopicOrderCreated), body)))
	require.Equal(t, []string{"ada@example.com"}, mailer.to)
	require.Equal(t, "Order received", mailer.subject[0])
	require.Contains(t, mailer.body[0], "Total: $90.49")
}

func TestTaskHandlerSkipsRetryOnGarbage(t *testing.T) {
	err := TaskHandler{Logger: zerolog.Nop()}.ProcessTask(context.Background(), asynq.NewTask("event:x", []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailNotifierSkipsGuests(t *testing.T) {
	mailer := &recordingMailer{}
	n := EmailNotifier{Mail: mailer, Enabled: true}
	err := n.Notify(context.Background(), repo.DomainEvent{Topic: events.TopicOrderCreated, Payload: []byte(`{"userId":"guest:9b2f4c1e-3a5d-4e6f-8a7b-1c2d3e4f5a6b"}`)})
	require.NoError(t, err)
	require.Empty(t, mailer.to)

	n.TopicToggles = map[string]bool{events.TopicOrderCreated: false}
	require.NoError(t, n.Notify(context.Background(), repo.DomainEvent{Topic: events.TopicOrderCreated, Payload: []byte(`{"userId":"ada@example.com"}`)}))
	require.Empty(t, mailer.to)
}

func TestRecipientFromOwner(t *testing.T) {
	require.Equal(t, "ada@example.com", RecipientFromOwner("ada@example.com"))
	require.Empty(t, RecipientFromOwner("user-42"))
	require.Empty(t, RecipientFromOwner(""))
}
