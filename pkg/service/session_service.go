package service

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/havenai/haven/pkg/db"
	"github.com/havenai/haven/pkg/event"
	"github.com/havenai/haven/pkg/utils"
)

// SessionService serves session lifecycle and history queries.
type SessionService struct {
	db        *gorm.DB
	memory    *MemoryService
	summaries *SummaryService
	logger    *slog.Logger
}

func NewSessionService(database *gorm.DB, memory *MemoryService, summaries *SummaryService) *SessionService {
	return &SessionService{
		db:        database,
		memory:    memory,
		summaries: summaries,
		logger:    utils.GetLogger(),
	}
}

// List returns a user's sessions, newest activity first.
func (s *SessionService) List(userID string) ([]db.Session, error) {
	var sessions []db.Session
	err := s.db.Where("user_id = ?", userID).
		Order("last_activity DESC").Find(&sessions).Error
	return sessions, err
}

// Turns returns the persisted transcript of one session in order.
func (s *SessionService) Turns(sessionID string, limit int) ([]db.Turn, error) {
	q := s.db.Where("session_id = ?", sessionID).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var turns []db.Turn
	err := q.Find(&turns).Error
	return turns, err
}

// End closes a session: the durable row is marked closed, live state is
// evicted, and summarization runs in the background so logout never
// waits on a model.
func (s *SessionService) End(ctx context.Context, sessionID, userID string) error {
	err := s.db.Model(&db.Session{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Updates(map[string]any{
			"status":        db.SessionStatusClosed,
			"last_activity": time.Now(),
		}).Error
	if err != nil {
		return err
	}

	state := s.memory.Close(ctx, sessionID)
	event.Emit(event.SessionClosedEvent{SessionID: sessionID, UserID: userID})

	go func() {
		sumCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		s.summaries.Summarize(sumCtx, sessionID, userID, state)
	}()

	return nil
}

// CloseIdle marks durable rows of long-idle sessions closed. Runs from
// the cleanup job alongside in-memory eviction.
func (s *SessionService) CloseIdle(cutoff time.Time) (int64, error) {
	res := s.db.Model(&db.Session{}).
		Where("status = ? AND last_activity < ?", db.SessionStatusActive, cutoff).
		Update("status", db.SessionStatusClosed)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("idle sessions closed", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
