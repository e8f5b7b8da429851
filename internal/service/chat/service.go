package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/suggestion"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/reply"
)

// Dependencies are the collaborators shared by every session of a Service.
// Zero fields fall back to defaults in NewService, except Responder.
type Dependencies struct {
	Responder   reply.Responder
	Suggestions suggestion.Store
	Scheduler   Scheduler
	Publisher   Publisher
	Clipboard   Clipboard
	Delay       Delay
	TimeLayout  string
	Location    *time.Location
	Now         func() time.Time
}

// Service owns the live sessions.
type Service struct {
	deps Dependencies

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService bootstraps the in-memory session registry.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Responder == nil {
		return nil, errors.New("chat service requires a responder")
	}
	if deps.Suggestions == nil {
		deps.Suggestions = suggestion.NewMemoryStore(suggestion.Seed())
	}
	if deps.Scheduler == nil {
		deps.Scheduler = SystemScheduler{}
	}
	if deps.Delay == (Delay{}) {
		deps.Delay = DefaultDelay()
	}
	if deps.TimeLayout == "" {
		deps.TimeLayout = DefaultTimeLayout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Service{
		deps:     deps,
		sessions: make(map[string]*Session),
	}, nil
}

// CreateSession provisions an empty conversation.
func (s *Service) CreateSession(_ context.Context) (*Session, error) {
	session := newSession(uuid.NewString(), s.deps)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	log.Info().Str("session_id", session.ID()).Msg("session created")
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "session %s", sessionID)
	}
	return session, nil
}

// DeleteSession drops a session and cancels its pending reply.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "session %s", sessionID)
	}
	session.shutdown()
	if f, ok := s.deps.Publisher.(Forgetter); ok {
		if err := f.Forget(ctx, sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("drop session events failed")
		}
	}
	log.Info().Str("session_id", sessionID).Msg("session deleted")
	return nil
}

// Len reports how many sessions are live.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Suggestions returns the full suggestion catalog.
func (s *Service) Suggestions() []suggestion.Suggestion {
	return s.deps.Suggestions.List()
}

// Close cancels every pending reply.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.shutdown()
	}
}
