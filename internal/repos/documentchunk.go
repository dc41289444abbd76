package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type DocumentChunkRepo interface {
	// ReplaceForBlob deletes any chunks a previous attempt left behind and
	// inserts the new set. Must run inside the caller's transaction so a
	// half-written chunk set can never be observed.
	ReplaceForBlob(ctx context.Context, tx *gorm.DB, blobID uuid.UUID, chunks []*types.DocumentChunk) error
	GetByBlobID(ctx context.Context, tx *gorm.DB, blobID uuid.UUID) ([]*types.DocumentChunk, error)
	FullDeleteByBlobIDs(ctx context.Context, tx *gorm.DB, blobIDs []uuid.UUID) error
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	repoLog := baseLog.With("repo", "DocumentChunkRepo")
	return &documentChunkRepo{db: db, log: repoLog}
}

func (r *documentChunkRepo) ReplaceForBlob(ctx context.Context, tx *gorm.DB, blobID uuid.UUID, chunks []*types.DocumentChunk) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if blobID == uuid.Nil {
		return nil
	}
	if err := transaction.WithContext(ctx).
		Where("blob_id = ?", blobID).
		Delete(&types.DocumentChunk{}).Error; err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&chunks).Error
}

func (r *documentChunkRepo) GetByBlobID(ctx context.Context, tx *gorm.DB, blobID uuid.UUID) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DocumentChunk
	if blobID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("blob_id = ?", blobID).
		Order("seq ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentChunkRepo) FullDeleteByBlobIDs(ctx context.Context, tx *gorm.DB, blobIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(blobIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("blob_id IN ?", blobIDs).
		Delete(&types.DocumentChunk{}).Error
}
