package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type QAPairRepo interface {
	ReplaceForBlob(ctx context.Context, tx *gorm.DB, blobID uuid.UUID, pairs []*types.QAPair) error
	ListByBlobID(ctx context.Context, tx *gorm.DB, blobID uuid.UUID) ([]*types.QAPair, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.QAPair, error)
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type qaPairRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQAPairRepo(db *gorm.DB, baseLog *logger.Logger) QAPairRepo {
	repoLog := baseLog.With("repo", "QAPairRepo")
	return &qaPairRepo{db: db, log: repoLog}
}

func (r *qaPairRepo) ReplaceForBlob(ctx context.Context, tx *gorm.DB, blobID uuid.UUID, pairs []*types.QAPair) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if blobID == uuid.Nil {
		return nil
	}
	if err := transaction.WithContext(ctx).
		Where("blob_id = ?", blobID).
		Delete(&types.QAPair{}).Error; err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&pairs).Error
}

func (r *qaPairRepo) ListByBlobID(ctx context.Context, tx *gorm.DB, blobID uuid.UUID) ([]*types.QAPair, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.QAPair
	if blobID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("blob_id = ?", blobID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *qaPairRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.QAPair, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.QAPair
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

func (r *qaPairRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.QAPair{}).Error
}
