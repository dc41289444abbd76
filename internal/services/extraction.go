package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/cache"
	"github.com/docuvault/docuvault-backend/internal/config"
	"github.com/docuvault/docuvault-backend/internal/db"
	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/sse"
	"github.com/docuvault/docuvault-backend/internal/types"
)

const jobStatusTTL = 24 * time.Hour

// TenantChannel is the SSE channel extraction and Q&A events for a tenant go
// out on.
func TenantChannel(tenantID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s", tenantID)
}

// JobStatusView pairs the ledger row with the Redis-mirrored status. The
// mirror is written on every transition, so it can be a step ahead of the
// row a poller loaded.
type JobStatusView struct {
	Job          *types.ExtractionJob `json:"job"`
	CachedStatus string               `json:"cached_status"`
}

type ExtractionService interface {
	// TriggerExtraction enqueues a job for the blob. Returns
	// repos.ErrActiveJobExists when a pending or processing job is already in
	// the ledger for the blob.
	TriggerExtraction(ctx context.Context, blobID uuid.UUID) (*types.ExtractionJob, error)
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusView, error)
	GetLatestJobForBlob(ctx context.Context, blobID uuid.UUID) (*types.ExtractionJob, error)
	ListJobs(ctx context.Context, limit int) ([]*types.ExtractionJob, error)
	GetChunks(ctx context.Context, blobID uuid.UUID) ([]*types.DocumentChunk, error)

	// StartWorker runs the claim loop until ctx is done.
	StartWorker(ctx context.Context, wake <-chan string)
}

type extractionService struct {
	dbc       *gorm.DB
	log       *logger.Logger
	cfg       config.WorkerConfig
	jobRepo   repos.ExtractionJobRepo
	blobRepo  repos.BlobInventoryRepo
	chunkRepo repos.DocumentChunkRepo
	bucket    BucketService
	docAI     DocAIService
	qaService QAService
	hub       *sse.SSEHub
	cache     cache.Cache
}

func NewExtractionService(
	dbc *gorm.DB,
	log *logger.Logger,
	cfg config.WorkerConfig,
	jobRepo repos.ExtractionJobRepo,
	blobRepo repos.BlobInventoryRepo,
	chunkRepo repos.DocumentChunkRepo,
	bucket BucketService,
	docAI DocAIService,
	qaService QAService,
	hub *sse.SSEHub,
	c cache.Cache,
) ExtractionService {
	return &extractionService{
		dbc:       dbc,
		log:       log.With("service", "ExtractionService"),
		cfg:       cfg,
		jobRepo:   jobRepo,
		blobRepo:  blobRepo,
		chunkRepo: chunkRepo,
		bucket:    bucket,
		docAI:     docAI,
		qaService: qaService,
		hub:       hub,
		cache:     c,
	}
}

func (es *extractionService) TriggerExtraction(ctx context.Context, blobID uuid.UUID) (*types.ExtractionJob, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil || rd.TenantID == uuid.Nil {
		return nil, fmt.Errorf("No tenant scope on request")
	}

	blobs, err := es.blobRepo.GetByIDs(ctx, nil, []uuid.UUID{blobID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load blob: %w", err)
	}
	if len(blobs) == 0 || blobs[0].TenantID != rd.TenantID {
		return nil, fmt.Errorf("File not found")
	}
	blob := blobs[0]

	job := &types.ExtractionJob{
		ID:            uuid.New(),
		TenantID:      rd.TenantID,
		BlobID:        blob.ID,
		CorrelationID: uuid.New(),
		RequestedBy:   rd.UserID,
		Status:        types.JobStatusPending,
	}

	// Ledger row and inventory status move together or not at all. A
	// concurrent duplicate trips the active-job unique index inside the
	// transaction and rolls both back.
	err = es.dbc.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := es.jobRepo.Create(ctx, tx, []*types.ExtractionJob{job}); err != nil {
			return err
		}
		return es.blobRepo.UpdateFields(ctx, tx, blob.ID, map[string]interface{}{
			"extraction_status": types.ExtractionStatusPending,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := db.NotifyExtractionJobs(ctx, es.dbc, job.ID.String()); err != nil {
		// The ticker picks the job up anyway.
		es.log.Warn("Failed to notify worker", "jobID", job.ID, "error", err.Error())
	}
	if err := es.cache.SetJobStatus(ctx, job.ID, types.JobStatusPending, jobStatusTTL); err != nil {
		es.log.Warn("Failed to mirror job status", "jobID", job.ID, "error", err.Error())
	}

	es.hub.Broadcast(sse.SSEMessage{
		Channel: TenantChannel(rd.TenantID),
		Event:   sse.SSEEventExtractionQueued,
		Data: map[string]any{
			"job_id":         job.ID,
			"blob_id":        blob.ID,
			"correlation_id": job.CorrelationID,
		},
	})

	es.log.Info("Extraction queued",
		"jobID", job.ID,
		"blobID", blob.ID,
		"correlationID", job.CorrelationID,
		"requestedBy", rd.UserID,
	)
	return job, nil
}

// GetJobStatus answers the ledger row plus the Redis status mirror. A cache
// miss or error falls back to the row's own status; Redis being down must
// never fail a read.
func (es *extractionService) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusView, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TenantID == uuid.Nil {
		return nil, fmt.Errorf("No tenant scope on request")
	}
	jobs, err := es.jobRepo.GetByIDs(ctx, nil, []uuid.UUID{jobID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load job: %w", err)
	}
	if len(jobs) == 0 || jobs[0].TenantID != rd.TenantID {
		return nil, fmt.Errorf("Job not found")
	}
	view := &JobStatusView{Job: jobs[0], CachedStatus: jobs[0].Status}
	cached, ok, err := es.cache.GetJobStatus(ctx, jobID)
	if err != nil {
		es.log.Warn("Failed to read cached job status", "jobID", jobID, "error", err.Error())
	} else if ok {
		view.CachedStatus = cached
	}
	return view, nil
}

// GetLatestJobForBlob answers the most recent ledger row for a file, whatever
// its terminal state, so the UI can show last-run outcome next to the file.
func (es *extractionService) GetLatestJobForBlob(ctx context.Context, blobID uuid.UUID) (*types.ExtractionJob, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TenantID == uuid.Nil {
		return nil, fmt.Errorf("No tenant scope on request")
	}
	job, err := es.jobRepo.GetLatestByBlobID(ctx, nil, blobID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load job: %w", err)
	}
	if job == nil || job.TenantID != rd.TenantID {
		return nil, fmt.Errorf("Job not found")
	}
	return job, nil
}

func (es *extractionService) ListJobs(ctx context.Context, limit int) ([]*types.ExtractionJob, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TenantID == uuid.Nil {
		return nil, fmt.Errorf("No tenant scope on request")
	}
	return es.jobRepo.ListByTenantID(ctx, nil, rd.TenantID, limit)
}

func (es *extractionService) GetChunks(ctx context.Context, blobID uuid.UUID) ([]*types.DocumentChunk, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TenantID == uuid.Nil {
		return nil, fmt.Errorf("No tenant scope on request")
	}
	blobs, err := es.blobRepo.GetByIDs(ctx, nil, []uuid.UUID{blobID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load blob: %w", err)
	}
	if len(blobs) == 0 || blobs[0].TenantID != rd.TenantID {
		return nil, fmt.Errorf("File not found")
	}
	return es.chunkRepo.GetByBlobID(ctx, nil, blobID)
}

// StartWorker drains runnable jobs, then sleeps until the poll ticker or a
// LISTEN/NOTIFY wake-up fires.
func (es *extractionService) StartWorker(ctx context.Context, wake <-chan string) {
	go func() {
		es.log.Info("Extraction worker started",
			"pollInterval", es.cfg.PollInterval.String(),
			"maxAttempts", es.cfg.MaxAttempts,
		)
		ticker := time.NewTicker(es.cfg.PollInterval)
		defer ticker.Stop()

		for {
			es.drainOnce(ctx)
			select {
			case <-ctx.Done():
				es.log.Info("Extraction worker stopped")
				return
			case <-ticker.C:
			case <-wake:
			}
		}
	}()
}

func (es *extractionService) drainOnce(ctx context.Context) {
	es.reapLostJobs(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := es.jobRepo.ClaimNextRunnable(ctx, nil, es.cfg.MaxAttempts, es.cfg.RetryDelay, es.cfg.StaleCutoff)
		if err != nil {
			es.log.Error("Failed to claim job", "error", err.Error())
			return
		}
		if job == nil {
			return
		}
		es.runJob(ctx, job)
	}
}

// reapLostJobs fails stale processing rows that already spent their attempts.
// The claim query skips them, so without this they would stay processing
// forever after a crashed final attempt.
func (es *extractionService) reapLostJobs(ctx context.Context) {
	reaped, err := es.jobRepo.ReapStaleExhausted(ctx, nil, es.cfg.MaxAttempts, es.cfg.StaleCutoff)
	if err != nil {
		es.log.Error("Failed to reap lost jobs", "error", err.Error())
		return
	}
	for _, job := range reaped {
		if err := es.blobRepo.UpdateFields(ctx, nil, job.BlobID, map[string]interface{}{
			"extraction_status": types.ExtractionStatusFailed,
		}); err != nil {
			es.log.Error("Failed to mark blob failed", "blobID", job.BlobID, "error", err.Error())
		}
		es.publishStatus(ctx, job, types.JobStatusFailed, sse.SSEEventExtractionFailed, map[string]any{
			"error": job.Error,
		})
		es.log.Error("Extraction failed permanently",
			"jobID", job.ID,
			"blobID", job.BlobID,
			"correlationID", job.CorrelationID,
			"attempts", job.Attempts,
			"error", job.Error,
		)
	}
}

func (es *extractionService) runJob(ctx context.Context, job *types.ExtractionJob) {
	jobLog := es.log.With("jobID", job.ID, "blobID", job.BlobID, "correlationID", job.CorrelationID, "attempt", job.Attempts)
	jobLog.Info("Extraction started")

	es.publishStatus(ctx, job, types.JobStatusProcessing, sse.SSEEventExtractionProcessing, nil)

	// Heartbeat while processing so a crash is detectable.
	hbCtx, stopHB := context.WithCancel(ctx)
	defer stopHB()
	go func() {
		t := time.NewTicker(es.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := es.jobRepo.Heartbeat(hbCtx, nil, job.ID); err != nil {
					jobLog.Warn("Heartbeat failed", "error", err.Error())
				}
			}
		}
	}()

	chunkCount, err := es.processJob(ctx, job)
	stopHB()
	if err != nil {
		es.failJob(ctx, job, err)
		return
	}

	es.publishStatus(ctx, job, types.JobStatusExtracted, sse.SSEEventExtractionExtracted, map[string]any{
		"chunk_count": chunkCount,
	})
	jobLog.Info("Extraction finished", "chunkCount", chunkCount)

	// Q&A generation is downstream of a successful extraction and must not
	// fail the job retroactively.
	if es.qaService != nil {
		if err := es.qaService.GenerateForBlob(ctx, job.TenantID, job.BlobID); err != nil {
			jobLog.Warn("QA generation failed", "error", err.Error())
		}
	}
}

func (es *extractionService) processJob(ctx context.Context, job *types.ExtractionJob) (int, error) {
	blobs, err := es.blobRepo.GetByIDs(ctx, nil, []uuid.UUID{job.BlobID})
	if err != nil {
		return 0, fmt.Errorf("load blob: %w", err)
	}
	if len(blobs) == 0 {
		return 0, fmt.Errorf("blob %s no longer exists", job.BlobID)
	}
	blob := blobs[0]

	rc, err := es.bucket.DownloadFile(ctx, blob.StorageKey)
	if err != nil {
		return 0, fmt.Errorf("download blob: %w", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return 0, fmt.Errorf("read blob: %w", err)
	}

	kind := SniffBlobKind(blob.OriginalName, blob.MimeType, data)
	var text string
	switch kind {
	case BlobKindPDF, BlobKindImage:
		if es.docAI == nil {
			return 0, fmt.Errorf("kind %s requires a document processor, none configured", kind)
		}
		mime := blob.MimeType
		if kind == BlobKindPDF {
			mime = "application/pdf"
		}
		text, err = es.docAI.ExtractText(ctx, mime, data)
	case BlobKindDOCX, BlobKindPPTX, BlobKindHTML, BlobKindText:
		text, err = ExtractNativeText(kind, blob.OriginalName, data)
	default:
		return 0, fmt.Errorf("unsupported file kind %s for %s", kind, blob.OriginalName)
	}
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return 0, fmt.Errorf("document produced no text")
	}

	pieces := SplitIntoChunks(text, es.cfg.ChunkMaxChars)
	chunks := make([]*types.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		meta, _ := json.Marshal(map[string]any{"kind": kind, "source": blob.OriginalName})
		chunks = append(chunks, &types.DocumentChunk{
			TenantID:      job.TenantID,
			BlobID:        job.BlobID,
			JobID:         job.ID,
			Seq:           i,
			Text:          piece,
			TokenEstimate: EstimateTokens(piece),
			Metadata:      datatypes.JSON(meta),
		})
	}

	// Chunks, job terminal state, and inventory status commit atomically.
	err = es.dbc.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := es.chunkRepo.ReplaceForBlob(ctx, tx, job.BlobID, chunks); err != nil {
			return fmt.Errorf("replace chunks: %w", err)
		}
		if err := es.jobRepo.UpdateFields(ctx, tx, job.ID, map[string]interface{}{
			"status":       types.JobStatusExtracted,
			"error":        "",
			"locked_at":    nil,
			"heartbeat_at": nil,
		}); err != nil {
			return fmt.Errorf("finish job: %w", err)
		}
		return es.blobRepo.UpdateFields(ctx, tx, job.BlobID, map[string]interface{}{
			"extraction_status": types.ExtractionStatusExtracted,
		})
	})
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (es *extractionService) failJob(ctx context.Context, job *types.ExtractionJob, cause error) {
	now := time.Now()
	exhausted := job.Attempts >= es.cfg.MaxAttempts

	blobStatus := types.ExtractionStatusPending
	if exhausted {
		blobStatus = types.ExtractionStatusFailed
	}

	err := es.dbc.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := es.jobRepo.UpdateFields(ctx, tx, job.ID, map[string]interface{}{
			"status":        types.JobStatusFailed,
			"error":         cause.Error(),
			"last_error_at": now,
			"locked_at":     nil,
			"heartbeat_at":  nil,
		}); err != nil {
			return err
		}
		return es.blobRepo.UpdateFields(ctx, tx, job.BlobID, map[string]interface{}{
			"extraction_status": blobStatus,
		})
	})
	if err != nil {
		es.log.Error("Failed to record job failure", "jobID", job.ID, "error", err.Error())
	}

	if exhausted {
		es.publishStatus(ctx, job, types.JobStatusFailed, sse.SSEEventExtractionFailed, map[string]any{
			"error": cause.Error(),
		})
		es.log.Error("Extraction failed permanently",
			"jobID", job.ID,
			"blobID", job.BlobID,
			"correlationID", job.CorrelationID,
			"attempts", job.Attempts,
			"error", cause.Error(),
		)
		return
	}

	es.publishStatus(ctx, job, types.JobStatusFailed, sse.SSEEventExtractionRetrying, map[string]any{
		"error":        cause.Error(),
		"attempt":      job.Attempts,
		"max_attempts": es.cfg.MaxAttempts,
	})
	es.log.Warn("Extraction attempt failed, will retry",
		"jobID", job.ID,
		"blobID", job.BlobID,
		"correlationID", job.CorrelationID,
		"attempt", job.Attempts,
		"error", cause.Error(),
	)
}

func (es *extractionService) publishStatus(ctx context.Context, job *types.ExtractionJob, status string, event sse.SSEEvent, extra map[string]any) {
	if err := es.cache.SetJobStatus(ctx, job.ID, status, jobStatusTTL); err != nil {
		es.log.Warn("Failed to mirror job status", "jobID", job.ID, "error", err.Error())
	}
	data := map[string]any{
		"job_id":         job.ID,
		"blob_id":        job.BlobID,
		"correlation_id": job.CorrelationID,
		"status":         status,
	}
	for k, v := range extra {
		data[k] = v
	}
	es.hub.Broadcast(sse.SSEMessage{
		Channel: TenantChannel(job.TenantID),
		Event:   event,
		Data:    data,
	})
}
