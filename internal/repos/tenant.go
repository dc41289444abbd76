package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type TenantRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tenants []*types.Tenant) ([]*types.Tenant, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, tenantIDs []uuid.UUID) ([]*types.Tenant, error)
	SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error)
	ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Tenant, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type tenantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTenantRepo(db *gorm.DB, baseLog *logger.Logger) TenantRepo {
	repoLog := baseLog.With("repo", "TenantRepo")
	return &tenantRepo{db: db, log: repoLog}
}

func (r *tenantRepo) Create(ctx context.Context, tx *gorm.DB, tenants []*types.Tenant) ([]*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(tenants) == 0 {
		return []*types.Tenant{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *tenantRepo) GetByIDs(ctx context.Context, tx *gorm.DB, tenantIDs []uuid.UUID) ([]*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Tenant
	if len(tenantIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", tenantIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tenantRepo) SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Tenant{}).
		Where("slug = ?", slug).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tenantRepo) ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Tenant
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Joins(`JOIN "tenant_membership" ON "tenant_membership"."tenant_id" = "tenant"."id"`).
		Where(`"tenant_membership"."user_id" = ?`, userID).
		Order(`"tenant"."created_at" ASC`).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tenantRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Tenant{}).
		Where("id = ?", id).
		Updates(updates).Error
}
