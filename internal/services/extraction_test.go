package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docuvault/docuvault-backend/internal/cache"
	"github.com/docuvault/docuvault-backend/internal/config"
	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/sse"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = value
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, false, errors.New("cache unavailable")
	}
	v, ok := f.entries[key]
	return v, ok, nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeCache) Ping(ctx context.Context) error { return nil }

func (f *fakeCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return f.Set(ctx, cache.JobStatusKey(jobID), []byte(status), ttl)
}

func (f *fakeCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	b, ok, err := f.Get(ctx, cache.JobStatusKey(jobID))
	if err != nil || !ok {
		return "", ok, err
	}
	return string(b), true, nil
}

var _ cache.Cache = (*fakeCache)(nil)

type fakeBucket struct {
	deleted  []string
	replaced []string
}

func (f *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error { return nil }
func (f *fakeBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (f *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
func (f *fakeBucket) ReplaceFile(ctx context.Context, key string, newFile io.Reader) error {
	f.replaced = append(f.replaced, key)
	return nil
}
func (f *fakeBucket) GetPublicURL(key string) string { return "https://cdn.test/" + key }
func (f *fakeBucket) SignedURL(key string, ttl time.Duration) (string, error) {
	return "https://signed.test/" + key, nil
}

var _ BucketService = (*fakeBucket)(nil)

func newExtractionTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	schema := []string{
		`CREATE TABLE "folder" (
			id TEXT PRIMARY KEY, tenant_id TEXT, parent_id TEXT, name TEXT, created_by TEXT,
			created_at DATETIME, updated_at DATETIME)`,
		`CREATE TABLE "blob_inventory" (
			id TEXT PRIMARY KEY, tenant_id TEXT, folder_id TEXT, original_name TEXT,
			mime_type TEXT, size_bytes INTEGER, checksum TEXT, storage_key TEXT, file_url TEXT,
			extraction_status TEXT, uploaded_by TEXT,
			created_at DATETIME, updated_at DATETIME, deleted_at DATETIME)`,
		`CREATE TABLE "extraction_job" (
			id TEXT PRIMARY KEY, tenant_id TEXT, blob_id TEXT, correlation_id TEXT,
			requested_by TEXT, status TEXT, attempts INTEGER, error TEXT,
			last_error_at DATETIME, locked_at DATETIME, heartbeat_at DATETIME,
			created_at DATETIME, updated_at DATETIME)`,
		`CREATE TABLE "document_chunk" (
			id TEXT PRIMARY KEY, tenant_id TEXT, blob_id TEXT, job_id TEXT,
			seq INTEGER, text TEXT, token_estimate INTEGER, metadata TEXT, created_at DATETIME)`,
	}
	for _, stmt := range schema {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return gdb, log
}

func newTestExtractionService(gdb *gorm.DB, log *logger.Logger, fc *fakeCache) *extractionService {
	return &extractionService{
		dbc:       gdb,
		log:       log.With("service", "ExtractionService"),
		cfg:       config.DefaultWorkerConfig(),
		jobRepo:   repos.NewExtractionJobRepo(gdb, log),
		blobRepo:  repos.NewBlobInventoryRepo(gdb, log),
		chunkRepo: repos.NewDocumentChunkRepo(gdb, log),
		hub:       sse.NewSSEHub(log),
		cache:     fc,
	}
}

func seedBlobAndJob(t *testing.T, gdb *gorm.DB, tenantID uuid.UUID, blobStatus, jobStatus string, attempts int) (*types.BlobInventory, *types.ExtractionJob) {
	t.Helper()
	blob := &types.BlobInventory{
		ID:               uuid.New(),
		TenantID:         tenantID,
		OriginalName:     "report.docx",
		MimeType:         "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		StorageKey:       "tenants/x/blobs/report.docx",
		ExtractionStatus: blobStatus,
		UploadedBy:       uuid.New(),
	}
	if err := gdb.Create(blob).Error; err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	job := &types.ExtractionJob{
		ID:            uuid.New(),
		TenantID:      tenantID,
		BlobID:        blob.ID,
		CorrelationID: uuid.New(),
		RequestedBy:   uuid.New(),
		Status:        jobStatus,
		Attempts:      attempts,
	}
	if err := gdb.Create(job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return blob, job
}

func drainEvent(t *testing.T, client *sse.SSEClient) sse.SSEMessage {
	t.Helper()
	select {
	case msg := <-client.Outbound:
		return msg
	default:
		t.Fatal("no event delivered")
		return sse.SSEMessage{}
	}
}

func TestGetJobStatusPrefersCachedStatus(t *testing.T) {
	gdb, log := newExtractionTestDB(t)
	fc := newFakeCache()
	es := newTestExtractionService(gdb, log, fc)

	tenantID := uuid.New()
	ctx := scopedCtx(tenantID, uuid.New())
	_, job := seedBlobAndJob(t, gdb, tenantID, types.ExtractionStatusPending, types.JobStatusPending, 0)

	if err := fc.SetJobStatus(ctx, job.ID, types.JobStatusProcessing, time.Hour); err != nil {
		t.Fatalf("SetJobStatus: %v", err)
	}

	view, err := es.GetJobStatus(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if view.Job == nil || view.Job.ID != job.ID {
		t.Fatalf("view.Job = %v", view.Job)
	}
	if view.CachedStatus != types.JobStatusProcessing {
		t.Errorf("cached status = %q, want %q", view.CachedStatus, types.JobStatusProcessing)
	}
	if view.Job.Status != types.JobStatusPending {
		t.Errorf("ledger status = %q, want %q", view.Job.Status, types.JobStatusPending)
	}
}

func TestGetJobStatusFallsBackToLedger(t *testing.T) {
	gdb, log := newExtractionTestDB(t)
	fc := newFakeCache()
	es := newTestExtractionService(gdb, log, fc)

	tenantID := uuid.New()
	ctx := scopedCtx(tenantID, uuid.New())
	_, job := seedBlobAndJob(t, gdb, tenantID, types.ExtractionStatusPending, types.JobStatusPending, 0)

	// Cache miss.
	view, err := es.GetJobStatus(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobStatus miss: %v", err)
	}
	if view.CachedStatus != types.JobStatusPending {
		t.Errorf("miss fallback = %q", view.CachedStatus)
	}

	// Cache error must not fail the read.
	fc.failGet = true
	view, err = es.GetJobStatus(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobStatus with cache down: %v", err)
	}
	if view.CachedStatus != types.JobStatusPending {
		t.Errorf("error fallback = %q", view.CachedStatus)
	}
}

func TestGetJobStatusScopesTenant(t *testing.T) {
	gdb, log := newExtractionTestDB(t)
	es := newTestExtractionService(gdb, log, newFakeCache())

	tenantID := uuid.New()
	_, job := seedBlobAndJob(t, gdb, tenantID, types.ExtractionStatusPending, types.JobStatusPending, 0)

	if _, err := es.GetJobStatus(scopedCtx(uuid.New(), uuid.New()), job.ID); err == nil {
		t.Error("expected cross-tenant read to fail")
	}
}

func TestFailJobRetryableSignalsRetry(t *testing.T) {
	gdb, log := newExtractionTestDB(t)
	fc := newFakeCache()
	es := newTestExtractionService(gdb, log, fc)

	tenantID := uuid.New()
	ctx := context.Background()
	blob, job := seedBlobAndJob(t, gdb, tenantID, types.ExtractionStatusPending, types.JobStatusProcessing, 1)

	client := es.hub.NewSSEClient(uuid.New())
	es.hub.AddChannel(client, TenantChannel(tenantID))
	defer es.hub.RemoveClient(client)

	es.failJob(ctx, job, errors.New("boom"))

	msg := drainEvent(t, client)
	if msg.Event != sse.SSEEventExtractionRetrying {
		t.Errorf("event = %q, want %q", msg.Event, sse.SSEEventExtractionRetrying)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T", msg.Data)
	}
	if data["correlation_id"] != job.CorrelationID {
		t.Errorf("correlation_id = %v", data["correlation_id"])
	}
	if data["attempt"] != 1 {
		t.Errorf("attempt = %v", data["attempt"])
	}

	var gotJob types.ExtractionJob
	if err := gdb.First(&gotJob, "id = ?", job.ID).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if gotJob.Status != types.JobStatusFailed || gotJob.Error != "boom" || gotJob.LastErrorAt == nil {
		t.Errorf("job after retryable failure = %+v", gotJob)
	}

	var gotBlob types.BlobInventory
	if err := gdb.First(&gotBlob, "id = ?", blob.ID).Error; err != nil {
		t.Fatalf("load blob: %v", err)
	}
	if gotBlob.ExtractionStatus != types.ExtractionStatusPending {
		t.Errorf("blob status = %q, want pending while retries remain", gotBlob.ExtractionStatus)
	}

	if cached, ok, _ := fc.GetJobStatus(ctx, job.ID); !ok || cached != types.JobStatusFailed {
		t.Errorf("cached status = %q ok=%v", cached, ok)
	}
}

func TestFailJobExhaustedSignalsFailure(t *testing.T) {
	gdb, log := newExtractionTestDB(t)
	es := newTestExtractionService(gdb, log, newFakeCache())

	tenantID := uuid.New()
	blob, job := seedBlobAndJob(t, gdb, tenantID, types.ExtractionStatusPending, types.JobStatusProcessing, es.cfg.MaxAttempts)

	client := es.hub.NewSSEClient(uuid.New())
	es.hub.AddChannel(client, TenantChannel(tenantID))
	defer es.hub.RemoveClient(client)

	es.failJob(context.Background(), job, errors.New("boom"))

	msg := drainEvent(t, client)
	if msg.Event != sse.SSEEventExtractionFailed {
		t.Errorf("event = %q, want %q", msg.Event, sse.SSEEventExtractionFailed)
	}

	var gotBlob types.BlobInventory
	if err := gdb.First(&gotBlob, "id = ?", blob.ID).Error; err != nil {
		t.Fatalf("load blob: %v", err)
	}
	if gotBlob.ExtractionStatus != types.ExtractionStatusFailed {
		t.Errorf("blob status = %q", gotBlob.ExtractionStatus)
	}
}

func TestReapLostJobsFinalizesAbandonedWork(t *testing.T) {
	gdb, log := newExtractionTestDB(t)
	fc := newFakeCache()
	es := newTestExtractionService(gdb, log, fc)

	tenantID := uuid.New()
	ctx := context.Background()
	blob, job := seedBlobAndJob(t, gdb, tenantID, types.ExtractionStatusPending, types.JobStatusProcessing, es.cfg.MaxAttempts)
	stale := time.Now().Add(-10 * time.Minute)
	if err := gdb.Model(&types.ExtractionJob{}).Where("id = ?", job.ID).
		Update("heartbeat_at", stale).Error; err != nil {
		t.Fatalf("age heartbeat: %v", err)
	}

	client := es.hub.NewSSEClient(uuid.New())
	es.hub.AddChannel(client, TenantChannel(tenantID))
	defer es.hub.RemoveClient(client)

	es.reapLostJobs(ctx)

	msg := drainEvent(t, client)
	if msg.Event != sse.SSEEventExtractionFailed {
		t.Errorf("event = %q, want %q", msg.Event, sse.SSEEventExtractionFailed)
	}

	var gotJob types.ExtractionJob
	if err := gdb.First(&gotJob, "id = ?", job.ID).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if gotJob.Status != types.JobStatusFailed {
		t.Errorf("job status = %q", gotJob.Status)
	}

	var gotBlob types.BlobInventory
	if err := gdb.First(&gotBlob, "id = ?", blob.ID).Error; err != nil {
		t.Fatalf("load blob: %v", err)
	}
	if gotBlob.ExtractionStatus != types.ExtractionStatusFailed {
		t.Errorf("blob status = %q", gotBlob.ExtractionStatus)
	}

	if cached, ok, _ := fc.GetJobStatus(ctx, job.ID); !ok || cached != types.JobStatusFailed {
		t.Errorf("cached status = %q ok=%v", cached, ok)
	}
}

func TestDeleteBlobDropsCachedJobStatus(t *testing.T) {
	gdb, log := newExtractionTestDB(t)
	fc := newFakeCache()
	bucket := &fakeBucket{}

	folderRepo := repos.NewFolderRepo(gdb, log)
	blobRepo := repos.NewBlobInventoryRepo(gdb, log)
	chunkRepo := repos.NewDocumentChunkRepo(gdb, log)
	jobRepo := repos.NewExtractionJobRepo(gdb, log)
	fsvc := NewFileService(gdb, log, folderRepo, blobRepo, chunkRepo, jobRepo, bucket, fc)

	tenantID := uuid.New()
	ctx := scopedCtx(tenantID, uuid.New())
	blob, job := seedBlobAndJob(t, gdb, tenantID, types.ExtractionStatusExtracted, types.JobStatusExtracted, 1)
	if err := fc.SetJobStatus(ctx, job.ID, types.JobStatusExtracted, time.Hour); err != nil {
		t.Fatalf("SetJobStatus: %v", err)
	}

	if err := fsvc.DeleteBlob(ctx, blob.ID); err != nil {
		t.Fatalf("DeleteBlob: %v", err)
	}

	if _, ok, _ := fc.GetJobStatus(ctx, job.ID); ok {
		t.Error("cached job status survived blob deletion")
	}
	if len(bucket.deleted) != 1 || bucket.deleted[0] != blob.StorageKey {
		t.Errorf("bucket deletes = %v", bucket.deleted)
	}
	if _, err := fsvc.GetBlob(ctx, blob.ID); err == nil {
		t.Error("deleted blob still readable")
	}
}
