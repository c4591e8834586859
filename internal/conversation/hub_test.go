// ABOUTME: Tests for the web client hub fan-out
// ABOUTME: Broadcast targeting, slow-client drops, session interest, and context-driven unregister

package conversation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []byte) Frame {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		var f Frame
		require.NoError(t, json.Unmarshal(msg, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Frame{}
	}
}

func assertEmpty(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected event: %s", msg)
	default:
	}
}

func TestHub_BroadcastTargets(t *testing.T) {
	h := NewHub(nil)
	ctx := context.Background()
	a := h.Register(ctx, "a")
	b := h.Register(ctx, "b")
	require.Equal(t, 2, h.Count())

	h.Broadcast(EventChatTyping, TypingPayload{Typing: true})
	for _, ch := range []<-chan []byte{a, b} {
		f := receive(t, ch)
		assert.Equal(t, EventChatTyping, f.Event)
		assert.JSONEq(t, `{"typing":true}`, string(f.Data))
	}

	h.BroadcastExcept("a", EventUserTyping, UserTypingPayload{Typing: true})
	assertEmpty(t, a)
	assert.Equal(t, EventUserTyping, receive(t, b).Event)

	assert.True(t, h.SendTo("a", EventChatError, ErrorPayload{Message: "nope"}))
	assert.Equal(t, EventChatError, receive(t, a).Event)
	assertEmpty(t, b)

	assert.False(t, h.SendTo("missing", EventChatError, ErrorPayload{}))
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(nil)
	slow := h.Register(context.Background(), "slow")

	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBufferSize*2; i++ {
			h.Broadcast(EventChatTyping, TypingPayload{Typing: i%2 == 0})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full client")
	}
	assert.Len(t, slow, clientBufferSize)
}

func TestHub_UnregisterOnContextCancel(t *testing.T) {
	h := NewHub(nil)
	var counts []int
	countCh := make(chan int, 8)
	h.OnCountChange = func(n int) { countCh <- n }

	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Register(ctx, "a")
	cancel()

	require.Eventually(t, func() bool { return len(countCh) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.Count())
	_, ok := <-ch
	assert.False(t, ok)

	counts = append(counts, <-countCh, <-countCh)
	assert.Equal(t, []int{1, 0}, counts)
}

func TestHub_ReRegisterKeepsNewChannel(t *testing.T) {
	h := NewHub(nil)
	ctx1, cancel1 := context.WithCancel(context.Background())
	old := h.Register(ctx1, "a")
	fresh := h.Register(context.Background(), "a")

	_, ok := <-old
	assert.False(t, ok, "replaced channel should be closed")

	cancel1()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.Count())

	h.Broadcast(EventChatTyping, TypingPayload{})
	receive(t, fresh)
}

func TestHub_SessionInterest(t *testing.T) {
	h := NewHub(nil)
	ctx := context.Background()
	a := h.Register(ctx, "a")
	b := h.Register(ctx, "b")

	h.SubscribeSession("a", "worker-1")
	h.PublishSession("worker-1", EventGatewayEvent, map[string]string{"event": "session.updated"})
	assert.Equal(t, EventGatewayEvent, receive(t, a).Event)
	assertEmpty(t, b)

	h.UnsubscribeSession("a", "worker-1")
	h.PublishSession("worker-1", EventGatewayEvent, nil)
	assertEmpty(t, a)
}

func TestHub_Close(t *testing.T) {
	h := NewHub(nil)
	ch := h.Register(context.Background(), "a")
	h.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late := h.Register(context.Background(), "b")
	_, ok = <-late
	assert.False(t, ok)
	assert.Equal(t, 0, h.Count())
}
