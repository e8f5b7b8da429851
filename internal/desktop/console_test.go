package desktop

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
	chatService "github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/reply"
)

type recordingClipboard struct{ texts []string }

func (c *recordingClipboard) WriteText(_ context.Context, text string) error {
	c.texts = append(c.texts, text)
	return nil
}

func newConsoleSession(t *testing.T, clipboard chatService.Clipboard) *chatService.Session {
	t.Helper()

	responder, err := reply.NewTemplateResponder(context.Background(), nil)
	require.NoError(t, err)

	svc, err := chatService.NewService(chatService.Dependencies{
		Responder: responder,
		Clipboard: clipboard,
		Delay:     chatService.Delay{Base: time.Millisecond},
		Location:  time.UTC,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	session, err := svc.CreateSession(context.Background())
	require.NoError(t, err)
	return session
}

func runConsole(t *testing.T, session *chatService.Session, script string, fs afero.Fs) string {
	t.Helper()
	return runConsoleWith(t, session, script, ConsoleOptions{Downloader: NewFileDownloader(fs, "/exports")})
}

func runConsoleWith(t *testing.T, session *chatService.Session, script string, opts ConsoleOptions) string {
	t.Helper()

	var out bytes.Buffer
	opts.Terminal = NewTerminal(strings.NewReader(script), &out)
	require.NoError(t, NewConsole(session, opts).Run(context.Background()))
	return out.String()
}

func TestConsoleConversation(t *testing.T) {
	clipboard := &recordingClipboard{}
	session := newConsoleSession(t, clipboard)
	fs := afero.NewMemMapFs()

	out := runConsole(t, session, "/suggest 2\n/copy\n/copy 1\n/history\n/export\n/quit\nignored\n", fs)

	msgs := session.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "Mock interview questions for FAANG", msgs[0].Text)
	require.Equal(t, chat.RoleAssistant, msgs[1].Role)

	require.Contains(t, out, "Try one of these with /suggest <n>:")
	require.Contains(t, out, "Placement GPT is typing...")
	require.Contains(t, out, "Placement GPT:\n"+msgs[1].Text)
	require.Contains(t, out, "Copied message 2.")
	require.Contains(t, out, "Copied message 1.")
	require.Equal(t, []string{msgs[1].Text, msgs[0].Text}, clipboard.texts)
	require.Contains(t, out, "You: Mock interview questions for FAANG")

	files, err := afero.ReadDir(fs, "/exports")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Contains(t, out, "Saved /exports/"+files[0].Name())

	data, err := afero.ReadFile(fs, "/exports/"+files[0].Name())
	require.NoError(t, err)
	require.Equal(t, session.Transcript(), string(data))
}

func TestConsoleClearAsksForConfirmation(t *testing.T) {
	session := newConsoleSession(t, nil)

	out := runConsole(t, session, "hello\n/clear\nn\n", afero.NewMemMapFs())
	require.Len(t, session.Messages(), 2)
	require.Contains(t, out, "Are you sure you want to clear all messages? [y/N]")
	require.Contains(t, out, "Kept the conversation.")

	out = runConsole(t, session, "/clear\ny\n/history\n", afero.NewMemMapFs())
	require.Empty(t, session.Messages())
	require.Contains(t, out, "Conversation cleared.")
	require.Contains(t, out, "No messages yet.")
}

func TestConsoleRejectsSuggestionsAfterStart(t *testing.T) {
	session := newConsoleSession(t, nil)

	out := runConsole(t, session, "hi\n/suggest 1\n/suggest 9\n/bogus\n", afero.NewMemMapFs())
	require.Len(t, session.Messages(), 2)
	require.Contains(t, out, "Suggestions are only available before the conversation starts.")
	require.Contains(t, out, "Unknown command /bogus.")
}

func TestConsoleIgnoresBlankInput(t *testing.T) {
	session := newConsoleSession(t, nil)

	out := runConsole(t, session, "   \n\n/copy\n", afero.NewMemMapFs())
	require.Empty(t, session.Messages())
	require.Contains(t, out, "Nothing to copy yet.")
}

func TestConsoleRendersMarkdownReplies(t *testing.T) {
	session := newConsoleSession(t, nil)

	out := runConsoleWith(t, session, "hello\n/quit\n", ConsoleOptions{Markdown: true, Style: "notty"})

	msgs := session.Messages()
	require.Len(t, msgs, 2)
	require.Contains(t, out, "Placement GPT:\n")
	require.Contains(t, out, "hello")
	require.Contains(t, out, "Practical Application")
	require.NotContains(t, out, "Placement GPT:\n"+msgs[1].Text)
}

func TestConsoleCopyWithoutClipboardPrintsText(t *testing.T) {
	session := newConsoleSession(t, nil)

	out := runConsoleWith(t, session, "hello\n/copy 1\n", ConsoleOptions{NoClipboard: true})

	require.Contains(t, out, "Clipboard disabled; message 1:\nhello\n")
	require.NotContains(t, out, "Copied message")
}

func TestPromptConfirmerAccessible(t *testing.T) {
	var out bytes.Buffer
	confirmer := PromptConfirmer{Accessible: true, Input: strings.NewReader("y\n"), Output: &out}

	ok, err := confirmer.Confirm(context.Background(), "Clear everything?")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, out.String(), "Clear everything?")

	confirmer.Input = strings.NewReader("n\n")
	ok, err = confirmer.Confirm(context.Background(), "Clear everything?")
	require.NoError(t, err)
	require.False(t, ok)
}
