package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type BlobInventoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, blobs []*types.BlobInventory) ([]*types.BlobInventory, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, blobIDs []uuid.UUID) ([]*types.BlobInventory, error)
	ListByFolder(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, folderID *uuid.UUID) ([]*types.BlobInventory, error)
	SearchByName(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, query string, limit int) ([]*types.BlobInventory, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type blobInventoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBlobInventoryRepo(db *gorm.DB, baseLog *logger.Logger) BlobInventoryRepo {
	repoLog := baseLog.With("repo", "BlobInventoryRepo")
	return &blobInventoryRepo{db: db, log: repoLog}
}

func (r *blobInventoryRepo) Create(ctx context.Context, tx *gorm.DB, blobs []*types.BlobInventory) ([]*types.BlobInventory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(blobs) == 0 {
		return []*types.BlobInventory{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&blobs).Error; err != nil {
		return nil, err
	}
	return blobs, nil
}

func (r *blobInventoryRepo) GetByIDs(ctx context.Context, tx *gorm.DB, blobIDs []uuid.UUID) ([]*types.BlobInventory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.BlobInventory
	if len(blobIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", blobIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *blobInventoryRepo) ListByFolder(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, folderID *uuid.UUID) ([]*types.BlobInventory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.BlobInventory
	if tenantID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if folderID == nil {
		q = q.Where("folder_id IS NULL")
	} else {
		q = q.Where("folder_id = ?", *folderID)
	}
	if err := q.Order("original_name ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *blobInventoryRepo) SearchByName(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, query string, limit int) ([]*types.BlobInventory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.BlobInventory
	if tenantID == uuid.Nil || query == "" {
		return results, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND original_name ILIKE ?", tenantID, "%"+query+"%").
		Order("original_name ASC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *blobInventoryRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.BlobInventory{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *blobInventoryRepo) SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.BlobInventory{}).Error
}
