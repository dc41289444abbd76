package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/types"
)

func seedJob(t *testing.T, gdb *gorm.DB, status string, attempts int, lastErrorAt, heartbeatAt *time.Time) uuid.UUID {
	t.Helper()
	job := &types.ExtractionJob{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		BlobID:        uuid.New(),
		CorrelationID: uuid.New(),
		RequestedBy:   uuid.New(),
		Status:        status,
		Attempts:      attempts,
		LastErrorAt:   lastErrorAt,
		HeartbeatAt:   heartbeatAt,
	}
	if err := gdb.Create(job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job.ID
}

// The claim query itself needs SKIP LOCKED, so the runnable predicate is
// exercised here with a plain Find.
func TestRunnableJobsSelection(t *testing.T) {
	gdb, _ := newTestDB(t)
	ctx := context.Background()

	now := time.Now()
	old := now.Add(-10 * time.Minute)
	fresh := now

	maxAttempts := 3
	retryCutoff := now.Add(-30 * time.Second)
	staleCutoff := now.Add(-2 * time.Minute)

	pending := seedJob(t, gdb, types.JobStatusPending, 0, nil, nil)
	failedRetryable := seedJob(t, gdb, types.JobStatusFailed, 1, &old, nil)
	failedTooRecent := seedJob(t, gdb, types.JobStatusFailed, 1, &fresh, nil)
	failedExhausted := seedJob(t, gdb, types.JobStatusFailed, 3, &old, nil)
	staleUnderCap := seedJob(t, gdb, types.JobStatusProcessing, 1, nil, &old)
	staleAtCap := seedJob(t, gdb, types.JobStatusProcessing, 3, nil, &old)
	freshProcessing := seedJob(t, gdb, types.JobStatusProcessing, 1, nil, &fresh)

	var got []*types.ExtractionJob
	if err := gdb.WithContext(ctx).
		Scopes(runnableJobs(maxAttempts, retryCutoff, staleCutoff)).
		Find(&got).Error; err != nil {
		t.Fatalf("Find runnable: %v", err)
	}

	runnable := map[uuid.UUID]bool{}
	for _, job := range got {
		runnable[job.ID] = true
	}

	for name, id := range map[string]uuid.UUID{
		"pending":          pending,
		"failed retryable": failedRetryable,
		"stale under cap":  staleUnderCap,
	} {
		if !runnable[id] {
			t.Errorf("%s job not selected", name)
		}
	}
	for name, id := range map[string]uuid.UUID{
		"failed too recent": failedTooRecent,
		"failed exhausted":  failedExhausted,
		"stale at cap":      staleAtCap,
		"fresh processing":  freshProcessing,
	} {
		if runnable[id] {
			t.Errorf("%s job selected", name)
		}
	}
}

func TestReapStaleExhausted(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewExtractionJobRepo(gdb, log)
	ctx := context.Background()

	old := time.Now().Add(-10 * time.Minute)
	fresh := time.Now()

	stuck := seedJob(t, gdb, types.JobStatusProcessing, 3, nil, &old)
	alive := seedJob(t, gdb, types.JobStatusProcessing, 3, nil, &fresh)
	reclaimable := seedJob(t, gdb, types.JobStatusProcessing, 1, nil, &old)

	reaped, err := repo.ReapStaleExhausted(ctx, nil, 3, 2*time.Minute)
	if err != nil {
		t.Fatalf("ReapStaleExhausted: %v", err)
	}
	if len(reaped) != 1 || reaped[0].ID != stuck {
		t.Fatalf("reaped = %v", reaped)
	}
	if reaped[0].Status != types.JobStatusFailed || reaped[0].Error == "" {
		t.Errorf("reaped job = %+v", reaped[0])
	}

	rows, err := repo.GetByIDs(ctx, nil, []uuid.UUID{stuck, alive, reclaimable})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	byID := map[uuid.UUID]*types.ExtractionJob{}
	for _, row := range rows {
		byID[row.ID] = row
	}
	if byID[stuck].Status != types.JobStatusFailed {
		t.Errorf("stuck job status = %q", byID[stuck].Status)
	}
	if byID[stuck].HeartbeatAt != nil {
		t.Error("stuck job heartbeat not cleared")
	}
	if byID[alive].Status != types.JobStatusProcessing {
		t.Errorf("alive job status = %q", byID[alive].Status)
	}
	if byID[reclaimable].Status != types.JobStatusProcessing {
		t.Errorf("reclaimable job status = %q", byID[reclaimable].Status)
	}

	// Second pass finds nothing.
	reaped, err = repo.ReapStaleExhausted(ctx, nil, 3, 2*time.Minute)
	if err != nil {
		t.Fatalf("ReapStaleExhausted second: %v", err)
	}
	if len(reaped) != 0 {
		t.Errorf("second reap = %v", reaped)
	}
}
