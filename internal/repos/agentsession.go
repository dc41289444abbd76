package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type AgentSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sessions []*types.AgentSession) ([]*types.AgentSession, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.AgentSession, error)
	ListByTenantAndUser(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID) ([]*types.AgentSession, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type agentSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAgentSessionRepo(db *gorm.DB, baseLog *logger.Logger) AgentSessionRepo {
	repoLog := baseLog.With("repo", "AgentSessionRepo")
	return &agentSessionRepo{db: db, log: repoLog}
}

func (r *agentSessionRepo) Create(ctx context.Context, tx *gorm.DB, sessions []*types.AgentSession) ([]*types.AgentSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sessions) == 0 {
		return []*types.AgentSession{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *agentSessionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.AgentSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.AgentSession
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *agentSessionRepo) ListByTenantAndUser(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID) ([]*types.AgentSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.AgentSession
	if tenantID == uuid.Nil || userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("updated_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *agentSessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.AgentSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *agentSessionRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Unscoped().
		Where("id IN ?", ids).
		Delete(&types.AgentSession{}).Error
}
