package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe("test_event", func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON("test_event", map[string]string{"foo": "bar"})
	require.NoError(t, err)
	require.Equal(t, 1, callCount)
	assert.Equal(t, "test_event", received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, "bar", decoded["foo"])
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return errors.New("ignored") })

	bus.Publish(&Event{Type: "event"})

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestEventBusNilAndInvalidPayload(t *testing.T) {
	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON("x", 1))

	bus := NewEventBus()
	assert.Error(t, bus.PublishJSON("x", make(chan int)))
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	seen := map[string]int{}
	bus.SubscribeAll(func(e *Event) error { seen[e.Type]++; return nil })

	for _, typ := range AllEventTypes {
		require.NoError(t, bus.PublishJSON(typ, BookingEventPayload{BookingID: 1}))
	}
	assert.Len(t, seen, len(AllEventTypes))
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPSinkForwardsEvents(t *testing.T) {
	ch := &fakeChannel{}
	sink := newAMQPSink(ch, "masterhand.events", nil)
	bus := NewEventBus()
	sink.Attach(bus)

	require.NoError(t, bus.PublishJSON(EventPaymentCompleted, PaymentEventPayload{PaymentID: 3, BookingID: 2, Amount: 100}))

	require.Len(t, ch.published, 1)
	assert.Equal(t, EventPaymentCompleted, ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)

	var p PaymentEventPayload
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &p))
	assert.Equal(t, int64(3), p.PaymentID)

	require.NoError(t, sink.Close())
	assert.True(t, ch.closed)
}

func TestAMQPSinkPublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	sink := newAMQPSink(ch, "x", nil)
	assert.Error(t, sink.Handle(&Event{Type: EventBookingCreated}))
}
