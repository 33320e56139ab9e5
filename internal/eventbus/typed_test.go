package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type planned struct {
	device string
	seq    uint64
}

func TestTypedBusFanOut(t *testing.T) {
	bus := NewTyped[planned]()
	metrics := bus.Subscribe("metrics")
	history := bus.Subscribe("history")
	bus.Publish(planned{device: "car", seq: 1})
	for _, ch := range []<-chan planned{metrics, history} {
		if got := <-ch; got.device != "car" || got.seq != 1 {
			t.Fatalf("unexpected event %+v", got)
		}
	}
	bus.Unsubscribe(metrics)
	assert.Equal(t, 1, bus.Subscribers())
	if _, ok := <-metrics; ok {
		t.Fatalf("expected unsubscribed channel to be closed")
	}
}

func TestTypedBusCloseClosesSubscribers(t *testing.T) {
	bus := NewTyped[planned]()
	ch1 := bus.Subscribe("metrics")
	ch2 := bus.Subscribe("history")
	bus.Close()
	bus.Close()
	for _, ch := range []<-chan planned{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Fatalf("expected closed channel")
		}
	}
	bus.Publish(planned{device: "tank"})
	bus.Unsubscribe(ch1)
	if _, ok := <-bus.Subscribe("late"); ok {
		t.Fatalf("subscribing to a closed bus should yield a closed channel")
	}
}

func TestTypedBusStatsPerSubscriber(t *testing.T) {
	bus := NewTyped[planned](WithBuffer(1))
	fast := bus.Subscribe("metrics")
	bus.Subscribe("history")
	bus.Publish(planned{seq: 1})
	<-fast
	bus.Publish(planned{seq: 2})

	assert.Equal(t, []Stats{
		{Name: "metrics", Pending: 1, Dropped: 0},
		{Name: "history", Pending: 1, Dropped: 1},
	}, bus.Stats())
	assert.Equal(t, uint64(1), bus.Dropped())
}
