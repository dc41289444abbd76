package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

// ErrActiveJobExists maps the partial unique index on
// extraction_job(blob_id) WHERE status IN ('pending','processing'). Callers
// treat it as "already queued", not as a failure.
var ErrActiveJobExists = errors.New("an active extraction job already exists for this blob")

type ExtractionJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, jobs []*types.ExtractionJob) ([]*types.ExtractionJob, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ExtractionJob, error)
	ListByTenantID(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, limit int) ([]*types.ExtractionJob, error)
	GetLatestByBlobID(ctx context.Context, tx *gorm.DB, blobID uuid.UUID) (*types.ExtractionJob, error)
	GetActiveByBlobID(ctx context.Context, tx *gorm.DB, blobID uuid.UUID) (*types.ExtractionJob, error)

	// ClaimNextRunnable claims the next job that is runnable:
	// - status=pending
	// - OR status=failed and attempts < maxAttempts and last_error_at older than retryDelay (or NULL)
	// - OR status=processing, attempts < maxAttempts, and the heartbeat is stale (crash recovery)
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleProcessing time.Duration) (*types.ExtractionJob, error)

	// ReapStaleExhausted fails processing rows whose worker went quiet after
	// the last allowed attempt. Returns the rows it finalized so the caller
	// can settle the inventory side and notify.
	ReapStaleExhausted(ctx context.Context, tx *gorm.DB, maxAttempts int, staleProcessing time.Duration) ([]*types.ExtractionJob, error)

	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type extractionJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractionJobRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionJobRepo {
	repoLog := baseLog.With("repo", "ExtractionJobRepo")
	return &extractionJobRepo{db: db, log: repoLog}
}

func (r *extractionJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.ExtractionJob) ([]*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.ExtractionJob{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&jobs).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrActiveJobExists
		}
		return nil, err
	}
	return jobs, nil
}

func (r *extractionJobRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ExtractionJob
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

func (r *extractionJobRepo) ListByTenantID(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, limit int) ([]*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ExtractionJob
	if tenantID == uuid.Nil {
		return results, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *extractionJobRepo) GetLatestByBlobID(ctx context.Context, tx *gorm.DB, blobID uuid.UUID) (*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if blobID == uuid.Nil {
		return nil, nil
	}
	var job types.ExtractionJob
	err := transaction.WithContext(ctx).
		Where("blob_id = ?", blobID).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *extractionJobRepo) GetActiveByBlobID(ctx context.Context, tx *gorm.DB, blobID uuid.UUID) (*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if blobID == uuid.Nil {
		return nil, nil
	}
	var job types.ExtractionJob
	err := transaction.WithContext(ctx).
		Where("blob_id = ? AND status IN ?", blobID, []string{types.JobStatusPending, types.JobStatusProcessing}).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *extractionJobRepo) ClaimNextRunnable(
	ctx context.Context,
	tx *gorm.DB,
	maxAttempts int,
	retryDelay time.Duration,
	staleProcessing time.Duration,
) (*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleProcessing)

	var claimed *types.ExtractionJob

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.ExtractionJob

		q := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Scopes(runnableJobs(maxAttempts, retryCutoff, staleCutoff)).
			Order("created_at ASC")

		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		// Claim it: mark processing, increment attempts, set lock/heartbeat.
		uErr := txx.Model(&types.ExtractionJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		job.Status = types.JobStatusProcessing
		job.Attempts++
		claimed = &job
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// runnableJobs filters to claimable ledger rows: fresh pending work, failed
// work whose retry delay elapsed, and processing rows whose worker stopped
// beating. Both retry branches respect the attempts cap, so a job that keeps
// killing its worker cannot run past maxAttempts.
func runnableJobs(maxAttempts int, retryCutoff, staleCutoff time.Time) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where(`
			(
				status = ?
				OR (
					status = ?
					AND attempts < ?
					AND (last_error_at IS NULL OR last_error_at < ?)
				)
				OR (
					status = ?
					AND attempts < ?
					AND heartbeat_at IS NOT NULL
					AND heartbeat_at < ?
				)
			)
		`, types.JobStatusPending,
			types.JobStatusFailed, maxAttempts, retryCutoff,
			types.JobStatusProcessing, maxAttempts, staleCutoff)
	}
}

// ReapStaleExhausted finalizes what runnableJobs excludes by design: a
// processing row already at the attempts cap whose worker vanished would
// otherwise stay processing forever.
func (r *extractionJobRepo) ReapStaleExhausted(
	ctx context.Context,
	tx *gorm.DB,
	maxAttempts int,
	staleProcessing time.Duration,
) ([]*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	staleCutoff := now.Add(-staleProcessing)

	var stuck []*types.ExtractionJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.
			Where("status = ? AND attempts >= ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?",
				types.JobStatusProcessing, maxAttempts, staleCutoff).
			Find(&stuck).Error; err != nil {
			return err
		}
		if len(stuck) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(stuck))
		for _, job := range stuck {
			ids = append(ids, job.ID)
		}
		return txx.Model(&types.ExtractionJob{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":        types.JobStatusFailed,
				"error":         "worker lost before completion",
				"last_error_at": now,
				"locked_at":     nil,
				"heartbeat_at":  nil,
				"updated_at":    now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	for _, job := range stuck {
		job.Status = types.JobStatusFailed
		job.Error = "worker lost before completion"
	}
	return stuck, nil
}

func (r *extractionJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.ExtractionJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Heartbeat only beats while the row is still processing, so a reclaimed
// job's old worker cannot resurrect it.
func (r *extractionJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.ExtractionJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusProcessing).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
