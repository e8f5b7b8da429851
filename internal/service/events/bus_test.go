package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/placement-gpt/backend/internal/config"
	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := New(config.EventsConfig{
		Backend:     config.EventsBackendMemory,
		TopicPrefix: "test.session.",
	}, NewLoggerAdapter(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func receive(t *testing.T, ch <-chan chat.Event) chat.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return chat.Event{}
	}
}

func TestBusDeliversEventsInOrder(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)

	msg := chat.Message{ID: "m1", Seq: 1, Role: chat.RoleUser, Text: "hi"}
	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventMessageAppended, SessionID: "s1", Message: &msg, Composing: true}))
	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventComposingChanged, SessionID: "s1", Composing: true}))
	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventSessionCleared, SessionID: "s1"}))

	first := receive(t, events)
	require.Equal(t, chat.EventMessageAppended, first.Type)
	require.NotNil(t, first.Message)
	require.Equal(t, "hi", first.Message.Text)
	require.Equal(t, chat.EventComposingChanged, receive(t, events).Type)
	require.Equal(t, chat.EventSessionCleared, receive(t, events).Type)
}

func TestBusIsolatesSessions(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)
	mine, err := bus.Subscribe(ctx, "mine")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, chat.Event{Type: chat.EventSessionCleared, SessionID: "mine"}))
	require.Equal(t, "mine", receive(t, mine).SessionID)

	select {
	case e := <-other:
		t.Fatalf("unexpected event for other session: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSubscriptionClosesWithContext(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(config.EventsConfig{Backend: "kafka"}, NewLoggerAdapter(zerolog.Nop()))
	require.Error(t, err)
}

func TestTopicUsesPrefix(t *testing.T) {
	bus := newTestBus(t)
	require.Equal(t, "test.session.abc", bus.Topic("abc"))
}
