package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(4, "ticker")

	b.Publish(Event{Topic: "ticker", Payload: "btcusdt"})
	b.Publish(Event{Topic: "trade", Payload: "ignored"})

	select {
	case ev := <-sub.C:
		assert.Equal(t, "ticker", ev.Topic)
		assert.Equal(t, "btcusdt", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected event not delivered")
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestBus_SubscribeAllTopicsWhenNoneGiven(t *testing.T) {
	b := New()
	sub := b.Subscribe(4)

	b.Publish(Event{Topic: "anything", Payload: 1})

	select {
	case ev := <-sub.C:
		assert.Equal(t, "anything", ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected event not delivered")
	}
}

func TestBus_DropsOldestOnFullMailbox(t *testing.T) {
	b := New()
	sub := b.Subscribe(2, "x")

	for i := 0; i < 5; i++ {
		b.Publish(Event{Topic: "x", Payload: i})
	}

	require.Positive(t, b.DroppedCount())

	var got []int
	for {
		select {
		case ev := <-sub.C:
			got = append(got, ev.Payload.(int))
		default:
			goto done
		}
	}
done:
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0])
	assert.Equal(t, 4, got[1])
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe(1, "x")
	require.Equal(t, 1, b.SubscriberCount())

	sub.Unsubscribe()
	require.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub.C
	assert.False(t, ok)
}
