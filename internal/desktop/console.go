package desktop

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
	chatService "github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
)

const helpText = `Commands:
  <text>         ask Placement GPT
  /suggest <n>   ask suggested question n (empty conversation only)
  /copy [n]      copy message n, or the latest reply, to the clipboard
  /export        save the conversation as a text file
  /clear         delete all messages
  /history       print the conversation
  /help          show this help
  /quit          leave`

// ConsoleOptions wires the console to its terminal and collaborators.
type ConsoleOptions struct {
	Terminal   *Terminal
	Confirmer  chatService.Confirmer
	Downloader chatService.Downloader
	// Markdown renders replies with glamour.
	Markdown bool
	Style    string
	// NoClipboard prints copied text instead of claiming a clipboard write.
	NoClipboard bool
}

// Console is the interactive line client over one session.
type Console struct {
	session    *chatService.Session
	term       *Terminal
	out        io.Writer
	confirmer  chatService.Confirmer
	downloader chatService.Downloader
	markdown   bool
	style      string
	noClip     bool
}

// NewConsole builds a console. The terminal doubles as confirmer when none is given.
func NewConsole(session *chatService.Session, opts ConsoleOptions) *Console {
	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = opts.Terminal
	}
	style := opts.Style
	if style == "" {
		style = "dark"
	}
	return &Console{
		session:    session,
		term:       opts.Terminal,
		out:        opts.Terminal.Writer(),
		confirmer:  confirmer,
		downloader: opts.Downloader,
		markdown:   opts.Markdown,
		style:      style,
		noClip:     opts.NoClipboard,
	}
}

// Run reads commands until /quit, end of input or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	c.printf("Placement GPT, your placement preparation assistant. Type /help for commands.\n")
	c.printSuggestions()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := c.term.ReadLine(chat.RoleUser.Label() + ":")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		quit, err := c.dispatch(ctx, strings.TrimSpace(line))
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

func (c *Console) dispatch(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, c.ask(ctx, func() (*chatService.ReplyHandle, error) {
			return c.session.Submit(ctx, line)
		})
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		c.printf("%s\n", helpText)
	case "/history":
		c.printHistory()
	case "/suggest":
		return false, c.suggest(ctx, arg)
	case "/copy":
		c.copy(ctx, arg)
	case "/export":
		c.export(ctx)
	case "/clear":
		return false, c.clear(ctx)
	default:
		c.printf("Unknown command %s. Type /help for commands.\n", name)
	}
	return false, nil
}

// ask submits and blocks until the reply lands.
func (c *Console) ask(ctx context.Context, submit func() (*chatService.ReplyHandle, error)) error {
	handle, err := submit()
	switch {
	case errors.Is(err, chatService.ErrEmptyInput):
		return nil
	case errors.Is(err, chatService.ErrBusy):
		c.printf("Placement GPT is still typing, please wait.\n")
		return nil
	case errors.Is(err, chatService.ErrSuggestionsClosed):
		c.printf("Suggestions are only available before the conversation starts.\n")
		return nil
	case err != nil:
		return err
	}

	c.printf("Placement GPT is typing...\n")
	select {
	case <-handle.Done():
	case <-ctx.Done():
		return nil
	}

	msgs := c.session.Messages()
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleAssistant {
		return nil
	}
	c.printf("%s:\n%s\n", last.Role.Label(), c.render(last.Text))
	return nil
}

func (c *Console) suggest(ctx context.Context, arg string) error {
	items := c.session.Suggestions()
	if len(items) == 0 {
		c.printf("Suggestions are only available before the conversation starts.\n")
		return nil
	}

	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(items) {
		c.printf("Pick a suggestion between 1 and %d.\n", len(items))
		return nil
	}

	c.printf("%s: %s\n", chat.RoleUser.Label(), items[n-1].Text)
	return c.ask(ctx, func() (*chatService.ReplyHandle, error) {
		return c.session.SubmitSuggestion(ctx, items[n-1].ID)
	})
}

func (c *Console) copy(ctx context.Context, arg string) {
	msgs := c.session.Messages()
	if len(msgs) == 0 {
		c.printf("Nothing to copy yet.\n")
		return
	}

	idx := -1
	if arg == "" {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == chat.RoleAssistant {
				idx = i
				break
			}
		}
	} else if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(msgs) {
		idx = n - 1
	}
	if idx < 0 {
		c.printf("No such message.\n")
		return
	}

	text, err := c.session.Copy(ctx, msgs[idx].ID)
	if err != nil {
		if errors.Is(err, chatService.ErrMessageNotFound) {
			c.printf("No such message.\n")
			return
		}
		log.Warn().Err(err).Msg("copy failed")
		c.printf("Could not copy: %v\n", errors.Cause(err))
		return
	}
	if c.noClip {
		c.printf("Clipboard disabled; message %d:\n%s\n", idx+1, text)
		return
	}
	c.printf("Copied message %d.\n", idx+1)
}

func (c *Console) export(ctx context.Context) {
	if c.downloader == nil {
		c.printf("Export is not configured.\n")
		return
	}
	filename, err := c.session.Download(ctx, c.downloader)
	if err != nil {
		log.Warn().Err(err).Msg("export failed")
		c.printf("Could not export: %v\n", err)
		return
	}
	if fd, ok := c.downloader.(*FileDownloader); ok {
		filename = fd.Path(filename)
	}
	c.printf("Saved %s\n", filename)
}

func (c *Console) clear(ctx context.Context) error {
	cleared, err := c.session.Clear(ctx, c.confirmer)
	if err != nil {
		return err
	}
	if cleared {
		c.printf("Conversation cleared.\n")
		c.printSuggestions()
	} else {
		c.printf("Kept the conversation.\n")
	}
	return nil
}

func (c *Console) printSuggestions() {
	items := c.session.Suggestions()
	if len(items) == 0 {
		return
	}
	c.printf("Try one of these with /suggest <n>:\n")
	for i, item := range items {
		c.printf("  %d. %s\n", i+1, item.Text)
	}
}

func (c *Console) printHistory() {
	empty := true
	for line := range c.session.Export() {
		empty = false
		c.printf("%s\n", line)
	}
	if empty {
		c.printf("No messages yet.\n")
	}
}

func (c *Console) render(text string) string {
	if !c.markdown {
		return text
	}
	styled, err := glamour.Render(text, c.style)
	if err != nil {
		log.Debug().Err(err).Msg("markdown render failed, printing raw reply")
		return text
	}
	return strings.TrimRight(styled, "\n")
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
