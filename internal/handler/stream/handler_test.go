package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/events"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/reply"
)

func newServer(t *testing.T, heartbeat time.Duration) (*httptest.Server, *chat.Service) {
	t.Helper()

	bus := events.NewMemoryBus("test.stream.", events.NewLoggerAdapter(zerolog.Nop()))
	t.Cleanup(func() { _ = bus.Close() })

	responder, err := reply.NewTemplateResponder(context.Background(), nil)
	require.NoError(t, err)

	svc, err := chat.NewService(chat.Dependencies{
		Responder: responder,
		Publisher: bus,
		Delay:     chat.Delay{Base: 10 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	r := chi.NewRouter()
	New(svc, bus).WithHeartbeat(heartbeat).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

// openStream returns the non-empty lines of the SSE body.
func openStream(t *testing.T, url string) <-chan string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
	}()
	return lines
}

func nextLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		require.True(t, ok, "stream closed")
		return line
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream frame")
		return ""
	}
}

func TestStreamDeliversSessionEvents(t *testing.T) {
	srv, svc := newServer(t, time.Hour)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	lines := openStream(t, srv.URL+"/stream/"+session.ID())
	status := nextLine(t, lines)
	require.True(t, strings.HasPrefix(status, "data: "))
	require.Contains(t, status, `"message":"stream established"`)

	handle, err := session.Submit(ctx, "hello")
	require.NoError(t, err)

	require.Equal(t, "event: message.appended", nextLine(t, lines))
	require.Contains(t, nextLine(t, lines), `"text":"hello"`)
	require.Equal(t, "event: composing.changed", nextLine(t, lines))
	require.Contains(t, nextLine(t, lines), `"composing":true`)

	<-handle.Done()

	require.Equal(t, "event: message.appended", nextLine(t, lines))
	require.Contains(t, nextLine(t, lines), `"role":"assistant"`)
	require.Equal(t, "event: composing.changed", nextLine(t, lines))
	require.Contains(t, nextLine(t, lines), `"composing":false`)
}

func TestStreamSendsHeartbeat(t *testing.T) {
	srv, svc := newServer(t, 20*time.Millisecond)

	session, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	lines := openStream(t, srv.URL+"/stream/"+session.ID())
	nextLine(t, lines)
	require.Contains(t, nextLine(t, lines), `"event":"heartbeat"`)
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _ := newServer(t, time.Hour)

	resp, err := http.Get(srv.URL + "/stream/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
