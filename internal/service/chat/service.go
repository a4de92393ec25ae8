package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/kb-chat/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidTurn     = errors.New("invalid turn role")
)

type sessionLog struct {
	session chat.Session
	turns   []chat.Turn
}

// Service keeps one append-only turn log per session id. Logs live for as
// long as the session does and are never persisted.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*sessionLog
}

// NewService bootstraps an empty in-memory session store.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]*sessionLog),
	}
}

// CreateSession provisions a new empty session with a generated id.
func (s *Service) CreateSession(ctx context.Context) (chat.Session, error) {
	session, _ := s.InitIfAbsent(ctx, "")
	return session, nil
}

// InitIfAbsent returns the session bound to sessionID, creating an empty one
// when none exists. An empty sessionID always creates a session with a fresh
// id. The boolean reports whether a session was created.
func (s *Service) InitIfAbsent(_ context.Context, sessionID string) (chat.Session, bool) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		return existing.session, false
	}

	entry := &sessionLog{
		session: chat.Session{
			ID:        sessionID,
			CreatedAt: time.Now().UTC(),
		},
		turns: make([]chat.Turn, 0, 16),
	}
	s.sessions[sessionID] = entry
	return entry.session, true
}

// Append adds a turn to the end of the session history.
func (s *Service) Append(_ context.Context, sessionID string, turn chat.Turn) error {
	if !turn.Role.Valid() {
		return ErrInvalidTurn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	entry.turns = append(entry.turns, turn)
	return nil
}

// All returns the full history of the session in insertion order.
func (s *Service) All(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Turn, len(entry.turns))
	copy(copied, entry.turns)
	return copied, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return entry.session, nil
}

// End discards the session and its history.
func (s *Service) End(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}
