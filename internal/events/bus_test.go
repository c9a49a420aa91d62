package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/repo/memstore"
)

type captureNotifier struct {
	events []repo.DomainEvent
}

func (c *captureNotifier) Notify(_ context.Context, event repo.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := memstore.New()
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicOrderCreated, "order-1", events.OrderCreated{OrderID: "order-1", TotalAmount: "90.49"})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	recorded := store.RecordedEvents()
	require.Len(t, recorded, 1)
	require.Equal(t, events.TopicOrderCreated, recorded[0].Topic)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "90.49", decoded["totalAmount"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: memstore.New()}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", "agg", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicCartMerged, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicCartMerged, "agg", "not json")
	require.Error(t, err)

	ev, err := bus.Emit(ctx, events.TopicCartMerged, "agg", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := events.Bus{Store: memstore.New(), Notifiers: []events.Notifier{
		events.NotifierFunc(func(context.Context, repo.DomainEvent) error { return boom }),
	}}

	ev, err := bus.Emit(context.Background(), events.TopicCouponRedeemed, "SAVE10", events.CouponRedeemed{Code: "SAVE10"})
	require.ErrorIs(t, err, boom)
	require.NotEmpty(t, ev.ID)
}

func TestPublishOnNilBusIsNoop(t *testing.T) {
	var bus *events.Bus
	bus.Publish(context.Background(), events.TopicOrderCreated, "x", nil)
}
