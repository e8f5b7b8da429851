package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
)

func newRedisTestBus(t *testing.T, maxLen int64) (*Bus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	bus, err := NewRedisBus(client, "test.session.", maxLen, NewLoggerAdapter(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, bus.Close()) })
	return bus, client
}

// waitReady publishes composing events until every subscriber has seen one.
// Fan-out subscribers only read entries added after their first XREAD.
func waitReady(t *testing.T, bus *Bus, sessionID string, subs ...<-chan chat.Event) {
	t.Helper()
	ready := make([]bool, len(subs))
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		require.NoError(t, bus.Publish(context.Background(), chat.Event{Type: chat.EventComposingChanged, SessionID: sessionID}))

		done := true
		for i, sub := range subs {
			if ready[i] {
				continue
			}
			select {
			case <-sub:
				ready[i] = true
			case <-time.After(50 * time.Millisecond):
			}
			done = done && ready[i]
		}
		if done {
			return
		}
	}
	t.Fatal("subscribers never became ready")
}

// receiveSkipping reads the next event whose type is not skip.
func receiveSkipping(t *testing.T, ch <-chan chat.Event, skip chat.EventType) chat.Event {
	t.Helper()
	for {
		e := receive(t, ch)
		if e.Type != skip {
			return e
		}
	}
}

func TestRedisBusFansOutInOrder(t *testing.T) {
	bus, _ := newRedisTestBus(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)
	waitReady(t, bus, "s1", first, second)

	question := chat.Message{ID: "m1", Seq: 1, Role: chat.RoleUser, Text: "hi"}
	answer := chat.Message{ID: "m2", Seq: 2, Role: chat.RoleAssistant, Text: "hello"}
	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventMessageAppended, SessionID: "s1", Message: &question}))
	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventMessageAppended, SessionID: "s1", Message: &answer}))
	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventSessionCleared, SessionID: "s1"}))

	for _, sub := range []<-chan chat.Event{first, second} {
		e := receiveSkipping(t, sub, chat.EventComposingChanged)
		require.Equal(t, chat.EventMessageAppended, e.Type)
		require.Equal(t, "m1", e.Message.ID)

		e = receiveSkipping(t, sub, chat.EventComposingChanged)
		require.Equal(t, chat.EventMessageAppended, e.Type)
		require.Equal(t, "m2", e.Message.ID)

		require.Equal(t, chat.EventSessionCleared, receiveSkipping(t, sub, chat.EventComposingChanged).Type)
	}
}

func TestRedisBusTrimsStreams(t *testing.T) {
	bus, client := newRedisTestBus(t, 5)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		msg := chat.Message{ID: fmt.Sprintf("m%d", i), Seq: uint64(i + 1), Role: chat.RoleUser, Text: "x"}
		require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventMessageAppended, SessionID: "s1", Message: &msg}))
	}

	n, err := client.XLen(ctx, bus.Topic("s1")).Result()
	require.NoError(t, err)
	require.LessOrEqual(t, n, int64(5))
	require.Positive(t, n)
}

func TestRedisBusForgetDropsStream(t *testing.T) {
	bus, client := newRedisTestBus(t, 100)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventSessionCleared, SessionID: "gone"}))
	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventSessionCleared, SessionID: "kept"}))

	require.NoError(t, bus.Forget(ctx, "gone"))

	exists, err := client.Exists(ctx, bus.Topic("gone"), bus.Topic("kept")).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, exists)
}

func TestMemoryBusForgetIsNoop(t *testing.T) {
	bus := newTestBus(t)
	require.NoError(t, bus.Forget(context.Background(), "s1"))
}
