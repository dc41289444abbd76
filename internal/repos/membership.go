package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type MembershipRepo interface {
	Create(ctx context.Context, tx *gorm.DB, memberships []*types.TenantMembership) ([]*types.TenantMembership, error)
	GetByTenantAndUser(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID) (*types.TenantMembership, error)
	ListByTenantID(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) ([]*types.TenantMembership, error)
	CountByTenantAndRole(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, role string) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type membershipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMembershipRepo(db *gorm.DB, baseLog *logger.Logger) MembershipRepo {
	repoLog := baseLog.With("repo", "MembershipRepo")
	return &membershipRepo{db: db, log: repoLog}
}

func (r *membershipRepo) Create(ctx context.Context, tx *gorm.DB, memberships []*types.TenantMembership) ([]*types.TenantMembership, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(memberships) == 0 {
		return []*types.TenantMembership{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&memberships).Error; err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *membershipRepo) GetByTenantAndUser(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID) (*types.TenantMembership, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if tenantID == uuid.Nil || userID == uuid.Nil {
		return nil, nil
	}
	var m types.TenantMembership
	err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Limit(1).
		Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

func (r *membershipRepo) ListByTenantID(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) ([]*types.TenantMembership, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TenantMembership
	if tenantID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Preload("User").
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *membershipRepo) CountByTenantAndRole(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, role string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.TenantMembership{}).
		Where("tenant_id = ? AND role = ?", tenantID, role).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *membershipRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.TenantMembership{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *membershipRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
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
		Delete(&types.TenantMembership{}).Error
}
