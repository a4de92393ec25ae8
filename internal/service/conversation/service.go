// Package conversation runs one question/answer turn against a session:
// the question is recorded, answered by the knowledge base, and the answer
// recorded after it.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/zhouzirui/kb-chat/backend/internal/model/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/model/rag"
)

// ErrInputRejected is returned for empty or whitespace-only questions.
var ErrInputRejected = errors.New("question must not be empty")

// SessionStore is the turn log a conversation writes to.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	Append(ctx context.Context, sessionID string, turn chat.Turn) error
	All(ctx context.Context, sessionID string) ([]chat.Turn, error)
	End(ctx context.Context, sessionID string) error
}

// Answerer produces an answer for a single question.
type Answerer interface {
	Answer(ctx context.Context, question string) (rag.AnswerResult, error)
}

// Outcome is the state of a session after a turn. Result is the zero value
// when the turn failed.
type Outcome struct {
	SessionID string
	Result    rag.AnswerResult
	History   []chat.Turn
}

// Service serializes turns per session so that at most one upstream call is
// in flight for any session.
type Service struct {
	store    SessionStore
	answerer Answerer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires a conversation runner.
func NewService(store SessionStore, answerer Answerer) *Service {
	return &Service{
		store:    store,
		answerer: answerer,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Ask runs one turn. The user turn is appended before the upstream call and
// stays in history if the call fails; the assistant turn is appended only on
// success.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (Outcome, error) {
	if strings.TrimSpace(question) == "" {
		return Outcome{SessionID: sessionID}, ErrInputRejected
	}

	// 未知会话不分配锁
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return Outcome{SessionID: sessionID}, fmt.Errorf("load session: %w", err)
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Append(ctx, sessionID, chat.UserTurn(question)); err != nil {
		// the session may have ended between the check and the lock
		s.dropLockIfGone(ctx, sessionID)
		return Outcome{SessionID: sessionID}, fmt.Errorf("record question: %w", err)
	}

	result, err := s.answerer.Answer(ctx, question)
	if err != nil {
		log.Printf("[ask] session=%s answer failed: %v", sessionID, err)
		history, histErr := s.store.All(ctx, sessionID)
		if histErr != nil {
			log.Printf("[ask] session=%s history unavailable after failure: %v", sessionID, histErr)
			s.dropLockIfGone(ctx, sessionID)
			return Outcome{SessionID: sessionID}, fmt.Errorf("answer question: %w", errors.Join(err, fmt.Errorf("load history: %w", histErr)))
		}
		return Outcome{SessionID: sessionID, History: history}, fmt.Errorf("answer question: %w", err)
	}

	if err := s.store.Append(ctx, sessionID, chat.AssistantTurn(result.AnswerText)); err != nil {
		s.dropLockIfGone(ctx, sessionID)
		return Outcome{SessionID: sessionID, Result: result}, fmt.Errorf("record answer: %w", err)
	}

	history, err := s.store.All(ctx, sessionID)
	if err != nil {
		return Outcome{SessionID: sessionID, Result: result}, fmt.Errorf("load history: %w", err)
	}

	log.Printf("[ask] session=%s turns=%d context=%t", sessionID, len(history), result.HasContext())
	return Outcome{SessionID: sessionID, Result: result, History: history}, nil
}

// End tears the session down.
func (s *Service) End(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()

	return s.store.End(ctx, sessionID)
}

func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// dropLockIfGone forgets the lock of a session the store no longer knows.
func (s *Service) dropLockIfGone(ctx context.Context, sessionID string) {
	if _, err := s.store.GetSession(ctx, sessionID); err == nil {
		return
	}
	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()
}
