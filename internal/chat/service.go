package chat

import (
	"context"
	"strings"
	"time"

	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Reply sources
const (
	SourceAgent    = "agent"
	SourceFallback = "fallback"
)

// Reply is the assistant's answer to one message
type Reply struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Source    string `json:"source"`
}

// Service proxies user messages to the agent and falls back to the keyword responder
type Service struct {
	agent      Agent
	store      SessionStore
	metrics    *metrics.Metrics
	maxHistory int
	now        func() time.Time
}

// NewService creates a chat service
func NewService(agent Agent, store SessionStore, m *metrics.Metrics, maxHistory int) *Service {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &Service{agent: agent, store: store, metrics: m, maxHistory: maxHistory, now: time.Now}
}

// Reply answers a message, creating the session on first use
func (s *Service) Reply(ctx context.Context, actor services.Actor, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &services.ValidationError{Message: "message is required"}
	}

	session, err := s.session(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reply, source := s.ask(ctx, actor, session, message)
	session.Messages = append(session.Messages,
		Message{Role: "user", Content: message, At: now},
		Message{Role: "assistant", Content: reply, At: now},
	)
	if len(session.Messages) > s.maxHistory {
		session.Messages = session.Messages[len(session.Messages)-s.maxHistory:]
	}
	session.UpdatedAt = now

	if err := s.store.Save(ctx, session); err != nil {
		// the answer is still useful without persisted history
		log.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to save chat session")
	}
	return &Reply{SessionID: session.ID, Message: reply, Source: source}, nil
}

// DeleteSession removes one of the caller's sessions
func (s *Service) DeleteSession(ctx context.Context, actor services.Actor, sessionID string) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return &services.NotFoundError{Entity: "chat session", ID: sessionID}
		}
		return &services.UpstreamError{Op: "load chat session", Err: err}
	}
	if session.UserID != actor.UserID.String() {
		return &services.NotFoundError{Entity: "chat session", ID: sessionID}
	}
	if err := s.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return &services.UpstreamError{Op: "delete chat session", Err: err}
	}
	return nil
}

func (s *Service) session(ctx context.Context, actor services.Actor, id string) (*Session, error) {
	if id != "" {
		session, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			if session.UserID != actor.UserID.String() {
				return nil, &services.NotFoundError{Entity: "chat session", ID: id}
			}
			return session, nil
		case !errors.Is(err, ErrSessionNotFound):
			log.Warn().Err(err).Str("session_id", id).Msg("Chat session lookup failed, starting fresh")
		}
	} else {
		id = uuid.NewString()
	}

	now := s.now()
	return &Session{ID: id, UserID: actor.UserID.String(), CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Service) ask(ctx context.Context, actor services.Actor, session *Session, message string) (string, string) {
	start := time.Now()
	reply, err := s.agent.Ask(ctx, AgentRequest{
		SessionID: session.ID,
		UserID:    actor.UserID.String(),
		Role:      string(actor.Role),
		Message:   message,
		History:   session.Messages,
	})
	if s.metrics != nil {
		s.metrics.RecordTimer("chat_agent_latency", time.Since(start).Milliseconds())
	}
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("Chat agent unavailable, using fallback")
		if s.metrics != nil {
			s.metrics.IncrementCounter("chat_fallbacks")
		}
		return Fallback(message), SourceFallback
	}
	return reply, SourceAgent
}
