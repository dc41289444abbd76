package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type AgentMessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, messages []*types.AgentMessage) ([]*types.AgentMessage, error)
	ListBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.AgentMessage, error)
	ListRecentBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.AgentMessage, error)
	FullDeleteBySessionIDs(ctx context.Context, tx *gorm.DB, sessionIDs []uuid.UUID) error
}

type agentMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAgentMessageRepo(db *gorm.DB, baseLog *logger.Logger) AgentMessageRepo {
	repoLog := baseLog.With("repo", "AgentMessageRepo")
	return &agentMessageRepo{db: db, log: repoLog}
}

func (r *agentMessageRepo) Create(ctx context.Context, tx *gorm.DB, messages []*types.AgentMessage) ([]*types.AgentMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(messages) == 0 {
		return []*types.AgentMessage{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *agentMessageRepo) ListBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.AgentMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.AgentMessage
	if sessionID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListRecentBySessionID returns the last limit messages in seq order.
func (r *agentMessageRepo) ListRecentBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.AgentMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.AgentMessage
	if sessionID == uuid.Nil {
		return results, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	// Flip back to chronological order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func (r *agentMessageRepo) FullDeleteBySessionIDs(ctx context.Context, tx *gorm.DB, sessionIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sessionIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Unscoped().
		Where("session_id IN ?", sessionIDs).
		Delete(&types.AgentMessage{}).Error
}
