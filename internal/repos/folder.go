package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type FolderRepo interface {
	Create(ctx context.Context, tx *gorm.DB, folders []*types.Folder) ([]*types.Folder, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, folderIDs []uuid.UUID) ([]*types.Folder, error)
	ListByParent(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, parentID *uuid.UUID) ([]*types.Folder, error)
	CountChildren(ctx context.Context, tx *gorm.DB, folderID uuid.UUID) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type folderRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFolderRepo(db *gorm.DB, baseLog *logger.Logger) FolderRepo {
	repoLog := baseLog.With("repo", "FolderRepo")
	return &folderRepo{db: db, log: repoLog}
}

func (r *folderRepo) Create(ctx context.Context, tx *gorm.DB, folders []*types.Folder) ([]*types.Folder, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(folders) == 0 {
		return []*types.Folder{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&folders).Error; err != nil {
		return nil, err
	}
	return folders, nil
}

func (r *folderRepo) GetByIDs(ctx context.Context, tx *gorm.DB, folderIDs []uuid.UUID) ([]*types.Folder, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Folder
	if len(folderIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", folderIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *folderRepo) ListByParent(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, parentID *uuid.UUID) ([]*types.Folder, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Folder
	if tenantID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if err := q.Order("name ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// CountChildren counts subfolders plus live inventory rows under the folder.
func (r *folderRepo) CountChildren(ctx context.Context, tx *gorm.DB, folderID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if folderID == uuid.Nil {
		return 0, nil
	}
	var folderCount int64
	if err := transaction.WithContext(ctx).
		Model(&types.Folder{}).
		Where("parent_id = ?", folderID).
		Count(&folderCount).Error; err != nil {
		return 0, err
	}
	var blobCount int64
	if err := transaction.WithContext(ctx).
		Model(&types.BlobInventory{}).
		Where("folder_id = ?", folderID).
		Count(&blobCount).Error; err != nil {
		return 0, err
	}
	return folderCount + blobCount, nil
}

func (r *folderRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Folder{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *folderRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
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
		Delete(&types.Folder{}).Error
}
