package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
	"github.com/zhouzirui/placement-gpt/backend/internal/model/suggestion"
)

const clearPrompt = "Are you sure you want to clear all messages?"

// ReplyHandle tracks one scheduled assistant reply.
type ReplyHandle struct {
	ID     string
	DueAt  time.Time
	Prompt chat.Message

	done chan struct{}
}

// Done is closed once the reply is delivered or cancelled.
func (h *ReplyHandle) Done() <-chan struct{} {
	return h.done
}

type pendingReply struct {
	handle *ReplyHandle
	timer  Timer
	token  uint64
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Messages  []chat.Message `json:"messages"`
	Composing bool           `json:"composing"`
}

// Session owns one conversation: the append-only message log, the composing
// flag and at most one pending reply. All transitions happen under mu.
type Session struct {
	id        string
	createdAt time.Time
	deps      Dependencies

	mu       sync.Mutex
	pubMu    sync.Mutex // held while publishing; acquired before mu is released
	messages []chat.Message
	seq      uint64
	token    uint64
	pending  *pendingReply
}

func newSession(id string, deps Dependencies) *Session {
	return &Session{
		id:        id,
		createdAt: deps.Now().UTC(),
		deps:      deps,
		messages:  make([]chat.Message, 0, 16),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Submit appends a user message and schedules the assistant reply.
func (s *Session) Submit(ctx context.Context, text string) (*ReplyHandle, error) {
	return s.submit(ctx, text, false)
}

// SubmitSuggestion submits the canned prompt with the given id. Suggestions are
// only offered while the log is empty.
func (s *Session) SubmitSuggestion(ctx context.Context, suggestionID string) (*ReplyHandle, error) {
	item, ok := s.deps.Suggestions.FindByID(suggestionID)
	if !ok {
		return nil, errors.Wrapf(ErrSuggestionNotFound, "suggestion %s", suggestionID)
	}
	return s.submit(ctx, item.Text, true)
}

func (s *Session) submit(ctx context.Context, text string, requireEmpty bool) (*ReplyHandle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if requireEmpty && len(s.messages) > 0 {
		s.mu.Unlock()
		return nil, ErrSuggestionsClosed
	}

	msg := s.appendLocked(chat.RoleUser, text)

	delay := s.deps.Delay.Next()
	s.token++
	token := s.token
	handle := &ReplyHandle{
		ID:     uuid.NewString(),
		DueAt:  msg.CreatedAt.Add(delay),
		Prompt: msg,
		done:   make(chan struct{}),
	}
	s.pending = &pendingReply{handle: handle, token: token}
	// The callback blocks on mu until Unlock, so assigning the timer here is safe.
	s.pending.timer = s.deps.Scheduler.AfterFunc(delay, func() {
		s.completeReply(token, text)
	})

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	log.Debug().
		Str("session_id", s.id).
		Str("message_id", msg.ID).
		Dur("delay", delay).
		Msg("scheduled assistant reply")

	s.publish(ctx, chat.Event{Type: chat.EventMessageAppended, Message: &msg, Composing: true, At: msg.CreatedAt})
	s.publish(ctx, chat.Event{Type: chat.EventComposingChanged, Composing: true, At: msg.CreatedAt})

	return handle, nil
}

// Suggestions returns the starter prompts, or nil once the conversation has begun.
func (s *Session) Suggestions() []suggestion.Suggestion {
	s.mu.Lock()
	empty := len(s.messages) == 0
	s.mu.Unlock()
	if !empty {
		return nil
	}
	return s.deps.Suggestions.List()
}

// completeReply runs when the reply delay elapses. A stale token means the
// reply was cancelled by Clear after the timer had already fired.
func (s *Session) completeReply(token uint64, sourceText string) {
	ctx := context.Background()

	text, err := s.deps.Responder.Reply(ctx, sourceText)

	s.mu.Lock()
	if s.pending == nil || s.pending.token != token {
		s.mu.Unlock()
		log.Debug().Str("session_id", s.id).Msg("dropping reply for cleared conversation")
		return
	}
	handle := s.pending.handle
	s.pending = nil

	var msg chat.Message
	if err == nil {
		msg = s.appendLocked(chat.RoleAssistant, text)
	}
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	defer close(handle.done)

	now := s.deps.Now().UTC()
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("failed to render assistant reply")
	} else {
		s.publish(ctx, chat.Event{Type: chat.EventMessageAppended, Message: &msg, At: msg.CreatedAt})
	}
	s.publish(ctx, chat.Event{Type: chat.EventComposingChanged, Composing: false, At: now})
}

// Clear empties the log after an affirmative confirmation and cancels any
// pending reply. It reports whether the log was cleared.
func (s *Session) Clear(ctx context.Context, confirmer Confirmer) (bool, error) {
	if confirmer == nil {
		return false, ErrConfirmationRequired
	}

	ok, err := confirmer.Confirm(ctx, clearPrompt)
	if err != nil {
		return false, errors.Wrap(err, "confirm clear")
	}
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	cancelled := s.cancelPendingLocked()
	s.messages = make([]chat.Message, 0, 16)
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	if cancelled != nil {
		close(cancelled.done)
	}

	log.Info().Str("session_id", s.id).Bool("cancelled_reply", cancelled != nil).Msg("conversation cleared")
	s.publish(ctx, chat.Event{Type: chat.EventSessionCleared, Composing: false, At: s.deps.Now().UTC()})
	return true, nil
}

// Copy hands the text of the message to the clipboard and returns it.
func (s *Session) Copy(ctx context.Context, messageID string) (string, error) {
	s.mu.Lock()
	var (
		text  string
		found bool
	)
	for _, msg := range s.messages {
		if msg.ID == messageID {
			text, found = msg.Text, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return "", errors.Wrapf(ErrMessageNotFound, "copy %s", messageID)
	}

	if s.deps.Clipboard != nil {
		if err := s.deps.Clipboard.WriteText(ctx, text); err != nil {
			return "", errors.Wrap(err, "write clipboard")
		}
	}
	return text, nil
}

// Composing reports whether an assistant reply is pending.
func (s *Session) Composing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Messages returns a copy of the log in conversation order.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.messages...)
}

// Snapshot returns the log and composing flag observed atomically.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.id,
		CreatedAt: s.createdAt,
		Messages:  append([]chat.Message(nil), s.messages...),
		Composing: s.pending != nil,
	}
}

// shutdown cancels the pending reply without touching the log.
func (s *Session) shutdown() {
	s.mu.Lock()
	cancelled := s.cancelPendingLocked()
	s.mu.Unlock()
	if cancelled != nil {
		close(cancelled.done)
	}
}

func (s *Session) appendLocked(role chat.Role, text string) chat.Message {
	s.seq++
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	msg := chat.Message{
		ID:        id.String(),
		Seq:       s.seq,
		Role:      role,
		Text:      text,
		CreatedAt: s.deps.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *Session) cancelPendingLocked() *ReplyHandle {
	if s.pending == nil {
		return nil
	}
	if s.pending.timer != nil {
		s.pending.timer.Stop()
	}
	handle := s.pending.handle
	s.pending = nil
	return handle
}

func (s *Session) publish(ctx context.Context, event chat.Event) {
	if s.deps.Publisher == nil {
		return
	}
	event.SessionID = s.id
	if err := s.deps.Publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Str("event", string(event.Type)).Msg("failed to publish session event")
	}
}
