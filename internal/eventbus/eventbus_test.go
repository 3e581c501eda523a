package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethDreamer/lighthouse/types"
)

func TestPublishFanOut(t *testing.T) {
	bus := New()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	require.Equal(t, 2, bus.NumSubscribers())

	head := types.Head{Slot: 3}
	bus.Publish(EventNewHead{Head: head})

	for _, sub := range []*Subscription{a, b} {
		ev := <-sub.C
		newHead, ok := ev.(EventNewHead)
		require.True(t, ok)
		require.Equal(t, head, newHead.Head)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(1)
	sub.Cancel()
	sub.Cancel() // idempotent

	_, open := <-sub.C
	require.False(t, open)
	require.Zero(t, bus.NumSubscribers())
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(1)

	bus.Publish(EventSlashing{ProposerIndex: 1, Slot: 10})
	// buffer full: must not block
	bus.Publish(EventSlashing{ProposerIndex: 2, Slot: 11})

	ev := <-sub.C
	slashing, ok := ev.(EventSlashing)
	require.True(t, ok)
	require.EqualValues(t, 1, slashing.ProposerIndex)

	select {
	case <-sub.C:
		t.Fatal("expected second event to have been dropped")
	default:
	}
}

func TestEventTypeNames(t *testing.T) {
	require.Equal(t, "new_head", Type(EventNewHead{}))
	require.Equal(t, "block_imported", Type(EventBlockImported{}))
	require.Equal(t, "slashing", Type(EventSlashing{}))
}
