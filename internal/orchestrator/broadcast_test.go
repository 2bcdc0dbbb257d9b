package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan []byte) []string {
	var out []string
	for {
		select {
		case f, open := <-ch:
			if !open {
				return out
			}
			out = append(out, string(f))
		default:
			return out
		}
	}
}

func TestSinkReplaysBufferedFramesToLateSubscribers(t *testing.T) {
	s := NewSink(8)
	s.Emit([]byte("a"))
	s.Emit([]byte("b"))

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()
	s.Emit([]byte("c"))

	assert.Equal(t, []string{"a", "b", "c"}, collect(ch))
}

func TestSinkBoundsItsReplayBuffer(t *testing.T) {
	s := NewSink(2)
	s.Emit([]byte("a"))
	s.Emit([]byte("b"))
	s.Emit([]byte("c"))

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()
	assert.Equal(t, []string{"b", "c"}, collect(ch))
}

func TestSinkCloseDrainsAndClosesSubscribers(t *testing.T) {
	s := NewSink(8)
	ch, _ := s.Subscribe()
	s.Emit([]byte("a"))
	s.Close()

	got := <-ch
	assert.Equal(t, "a", string(got))
	_, open := <-ch
	assert.False(t, open)

	// Emitting after close is a no-op, not a panic.
	s.Emit([]byte("late"))
}

func TestSinkSubscriberCount(t *testing.T) {
	s := NewSink(8)
	assert.Equal(t, 0, s.SubscriberCount())
	_, unsub1 := s.Subscribe()
	_, unsub2 := s.Subscribe()
	assert.Equal(t, 2, s.SubscriberCount())
	unsub1()
	unsub2()
	assert.Equal(t, 0, s.SubscriberCount())
}

func TestCoalescerSharesSinkWithinWindow(t *testing.T) {
	c := NewCoalescer(nil, 2*time.Second)
	key := Key("u1", "conv1", "who is on the SRE team?")

	first, leader := c.Join(context.Background(), key, 8)
	require.True(t, leader)
	second, joined := c.Join(context.Background(), key, 8)
	assert.False(t, joined)
	assert.Same(t, first, second)
}

func TestCoalescerInvalidateFreesKeyImmediately(t *testing.T) {
	c := NewCoalescer(nil, time.Hour)
	key := Key("u1", "conv1", "query")

	first, leader := c.Join(context.Background(), key, 8)
	require.True(t, leader)

	c.Invalidate(context.Background(), key)

	fresh, leaderAgain := c.Join(context.Background(), key, 8)
	assert.True(t, leaderAgain)
	assert.NotSame(t, first, fresh)
}

func TestKeyIsStableAndDistinguishesInputs(t *testing.T) {
	a := Key("u1", "c1", "q")
	assert.Equal(t, a, Key("u1", "c1", "q"))
	assert.NotEqual(t, a, Key("u2", "c1", "q"))
	assert.NotEqual(t, a, Key("u1", "c2", "q"))
	assert.NotEqual(t, a, Key("u1", "c1", "q2"))
}
