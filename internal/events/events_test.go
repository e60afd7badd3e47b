package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(RunStarted, &RunStartedData{RunID: "run-1", AsOfDate: "2024-07-01", Universe: 10})

	select {
	case event := <-ch:
		assert.Equal(t, RunStarted, event.Type)
		assert.False(t, event.Timestamp.IsZero())
		data, ok := event.Data.(*RunStartedData)
		require.True(t, ok)
		assert.Equal(t, "run-1", data.RunID)
		assert.Equal(t, 10, data.Universe)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()

	first, stopFirst := bus.Subscribe()
	defer stopFirst()
	second, stopSecond := bus.Subscribe()
	defer stopSecond()

	bus.Publish(RunCompleted, &RunCompletedData{RunID: "run-1"})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case event := <-ch:
			assert.Equal(t, RunCompleted, event.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(RunFailed, &RunFailedData{RunID: "run-1", Error: "boom"})
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()

	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// The subscriber never reads; publishing past the buffer must drop
	// instead of hanging.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish(InstrumentDropped, &InstrumentDroppedData{Symbol: "A.NS"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
