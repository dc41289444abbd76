package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
)

// The Postgres schema leans on uuid_generate_v4() and partial indexes, which
// sqlite cannot express. Tests create plain tables and set ids explicitly;
// claim-loop behavior that needs SKIP LOCKED is exercised against Postgres in
// integration environments, not here.
var testSchema = []string{
	`CREATE TABLE "user" (
		id TEXT PRIMARY KEY, email TEXT UNIQUE, password TEXT,
		first_name TEXT, last_name TEXT, avatar_bucket_key TEXT, avatar_url TEXT,
		created_at DATETIME, updated_at DATETIME)`,
	`CREATE TABLE "user_token" (
		id TEXT PRIMARY KEY, user_id TEXT, access_token TEXT, refresh_token TEXT,
		expires_at DATETIME, created_at DATETIME, updated_at DATETIME)`,
	`CREATE TABLE "tenant" (
		id TEXT PRIMARY KEY, name TEXT, slug TEXT UNIQUE, created_by TEXT,
		created_at DATETIME, updated_at DATETIME)`,
	`CREATE TABLE "tenant_membership" (
		id TEXT PRIMARY KEY, tenant_id TEXT, user_id TEXT, role TEXT,
		created_at DATETIME, updated_at DATETIME)`,
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
	`CREATE TABLE "qa_pair" (
		id TEXT PRIMARY KEY, tenant_id TEXT, blob_id TEXT, question TEXT, answer TEXT,
		source_chunk_ids TEXT, model TEXT, created_at DATETIME)`,
	`CREATE TABLE "agent_session" (
		id TEXT PRIMARY KEY, tenant_id TEXT, user_id TEXT, title TEXT,
		memory_summary TEXT, message_count INTEGER, created_at DATETIME, updated_at DATETIME)`,
	`CREATE TABLE "agent_message" (
		id TEXT PRIMARY KEY, session_id TEXT, role TEXT, content TEXT,
		tool_name TEXT, tool_payload TEXT, seq INTEGER, created_at DATETIME)`,
}

func newTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range testSchema {
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

func TestUserRepoCreateAndLookup(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewUserRepo(gdb, log)
	ctx := context.Background()

	u := &types.User{
		ID:        uuid.New(),
		Email:     "ada@example.com",
		Password:  "hashed",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
	if _, err := repo.Create(ctx, nil, []*types.User{u}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	exists, err := repo.EmailExists(ctx, nil, "ada@example.com")
	if err != nil {
		t.Fatalf("EmailExists: %v", err)
	}
	if !exists {
		t.Error("expected email to exist")
	}

	exists, err = repo.EmailExists(ctx, nil, "nobody@example.com")
	if err != nil {
		t.Fatalf("EmailExists: %v", err)
	}
	if exists {
		t.Error("expected email not to exist")
	}

	got, err := repo.GetByEmails(ctx, nil, []string{"ada@example.com"})
	if err != nil {
		t.Fatalf("GetByEmails: %v", err)
	}
	if len(got) != 1 || got[0].ID != u.ID {
		t.Fatalf("GetByEmails = %v", got)
	}

	if err := repo.UpdateFields(ctx, nil, u.ID, map[string]interface{}{"first_name": "Augusta"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, _ = repo.GetByIDs(ctx, nil, []uuid.UUID{u.ID})
	if got[0].FirstName != "Augusta" {
		t.Errorf("first name = %q", got[0].FirstName)
	}
}

func TestUserRepoEmptyInputs(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewUserRepo(gdb, log)
	ctx := context.Background()

	if got, err := repo.GetByIDs(ctx, nil, nil); err != nil || len(got) != 0 {
		t.Errorf("GetByIDs(nil) = %v, %v", got, err)
	}
	if err := repo.UpdateFields(ctx, nil, uuid.Nil, map[string]interface{}{"email": "x"}); err != nil {
		t.Errorf("UpdateFields nil id should be a no-op, got %v", err)
	}
}

func TestMembershipRepoOwnerCounting(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewMembershipRepo(gdb, log)
	ctx := context.Background()

	tenantID := uuid.New()
	owner := uuid.New()
	member := uuid.New()

	_, err := repo.Create(ctx, nil, []*types.TenantMembership{
		{ID: uuid.New(), TenantID: tenantID, UserID: owner, Role: types.TenantRoleOwner},
		{ID: uuid.New(), TenantID: tenantID, UserID: member, Role: types.TenantRoleMember},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	owners, err := repo.CountByTenantAndRole(ctx, nil, tenantID, types.TenantRoleOwner)
	if err != nil {
		t.Fatalf("CountByTenantAndRole: %v", err)
	}
	if owners != 1 {
		t.Errorf("owners = %d, want 1", owners)
	}

	m, err := repo.GetByTenantAndUser(ctx, nil, tenantID, member)
	if err != nil {
		t.Fatalf("GetByTenantAndUser: %v", err)
	}
	if m == nil || m.Role != types.TenantRoleMember {
		t.Fatalf("membership = %v", m)
	}

	missing, err := repo.GetByTenantAndUser(ctx, nil, tenantID, uuid.New())
	if err != nil {
		t.Fatalf("GetByTenantAndUser missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for non-member, got %v", missing)
	}

	if err := repo.FullDeleteByIDs(ctx, nil, []uuid.UUID{m.ID}); err != nil {
		t.Fatalf("FullDeleteByIDs: %v", err)
	}
	gone, _ := repo.GetByTenantAndUser(ctx, nil, tenantID, member)
	if gone != nil {
		t.Error("membership should be gone after delete")
	}
}

func TestFolderRepoListByParent(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewFolderRepo(gdb, log)
	ctx := context.Background()

	tenantID := uuid.New()
	userID := uuid.New()

	root := &types.Folder{ID: uuid.New(), TenantID: tenantID, Name: "docs", CreatedBy: userID}
	if _, err := repo.Create(ctx, nil, []*types.Folder{root}); err != nil {
		t.Fatalf("Create root: %v", err)
	}
	child := &types.Folder{ID: uuid.New(), TenantID: tenantID, ParentID: &root.ID, Name: "2026", CreatedBy: userID}
	if _, err := repo.Create(ctx, nil, []*types.Folder{child}); err != nil {
		t.Fatalf("Create child: %v", err)
	}

	roots, err := repo.ListByParent(ctx, nil, tenantID, nil)
	if err != nil {
		t.Fatalf("ListByParent root: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != root.ID {
		t.Fatalf("roots = %v", roots)
	}

	children, err := repo.ListByParent(ctx, nil, tenantID, &root.ID)
	if err != nil {
		t.Fatalf("ListByParent child: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("children = %v", children)
	}
}

func TestFolderRepoCountChildren(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewFolderRepo(gdb, log)
	ctx := context.Background()

	tenantID := uuid.New()
	userID := uuid.New()
	root := &types.Folder{ID: uuid.New(), TenantID: tenantID, Name: "docs", CreatedBy: userID}
	if _, err := repo.Create(ctx, nil, []*types.Folder{root}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	count, err := repo.CountChildren(ctx, nil, root.ID)
	if err != nil {
		t.Fatalf("CountChildren empty: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	sub := &types.Folder{ID: uuid.New(), TenantID: tenantID, ParentID: &root.ID, Name: "sub", CreatedBy: userID}
	if _, err := repo.Create(ctx, nil, []*types.Folder{sub}); err != nil {
		t.Fatalf("Create sub: %v", err)
	}
	blobRepo := NewBlobInventoryRepo(gdb, log)
	_, err = blobRepo.Create(ctx, nil, []*types.BlobInventory{{
		ID:               uuid.New(),
		TenantID:         tenantID,
		FolderID:         &root.ID,
		OriginalName:     "a.txt",
		StorageKey:       "k",
		ExtractionStatus: types.ExtractionStatusNone,
		UploadedBy:       userID,
	}})
	if err != nil {
		t.Fatalf("Create blob: %v", err)
	}

	count, err = repo.CountChildren(ctx, nil, root.ID)
	if err != nil {
		t.Fatalf("CountChildren: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestBlobInventoryRepoSoftDelete(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewBlobInventoryRepo(gdb, log)
	ctx := context.Background()

	tenantID := uuid.New()
	blob := &types.BlobInventory{
		ID:               uuid.New(),
		TenantID:         tenantID,
		OriginalName:     "doc.pdf",
		StorageKey:       "tenants/x/doc.pdf",
		ExtractionStatus: types.ExtractionStatusNone,
		UploadedBy:       uuid.New(),
	}
	if _, err := repo.Create(ctx, nil, []*types.BlobInventory{blob}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.SoftDeleteByIDs(ctx, nil, []uuid.UUID{blob.ID}); err != nil {
		t.Fatalf("SoftDeleteByIDs: %v", err)
	}

	got, err := repo.GetByIDs(ctx, nil, []uuid.UUID{blob.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("soft-deleted blob still visible: %v", got)
	}

	listed, err := repo.ListByFolder(ctx, nil, tenantID, nil)
	if err != nil {
		t.Fatalf("ListByFolder: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("soft-deleted blob still listed: %v", listed)
	}
}

func TestExtractionJobRepoLifecycle(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewExtractionJobRepo(gdb, log)
	ctx := context.Background()

	tenantID := uuid.New()
	blobID := uuid.New()
	job := &types.ExtractionJob{
		ID:            uuid.New(),
		TenantID:      tenantID,
		BlobID:        blobID,
		CorrelationID: uuid.New(),
		RequestedBy:   uuid.New(),
		Status:        types.JobStatusPending,
	}
	if _, err := repo.Create(ctx, nil, []*types.ExtractionJob{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	active, err := repo.GetActiveByBlobID(ctx, nil, blobID)
	if err != nil {
		t.Fatalf("GetActiveByBlobID: %v", err)
	}
	if active == nil || active.ID != job.ID {
		t.Fatalf("active = %v", active)
	}

	// Heartbeat must not beat a non-processing row.
	if err := repo.Heartbeat(ctx, nil, job.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	got, _ := repo.GetByIDs(ctx, nil, []uuid.UUID{job.ID})
	if got[0].HeartbeatAt != nil {
		t.Error("heartbeat set on pending job")
	}

	if err := repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status": types.JobStatusProcessing,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if err := repo.Heartbeat(ctx, nil, job.ID); err != nil {
		t.Fatalf("Heartbeat processing: %v", err)
	}
	got, _ = repo.GetByIDs(ctx, nil, []uuid.UUID{job.ID})
	if got[0].HeartbeatAt == nil {
		t.Error("heartbeat not set on processing job")
	}

	if err := repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status": types.JobStatusExtracted,
	}); err != nil {
		t.Fatalf("UpdateFields done: %v", err)
	}
	active, err = repo.GetActiveByBlobID(ctx, nil, blobID)
	if err != nil {
		t.Fatalf("GetActiveByBlobID done: %v", err)
	}
	if active != nil {
		t.Errorf("extracted job still active: %v", active)
	}

	latest, err := repo.GetLatestByBlobID(ctx, nil, blobID)
	if err != nil {
		t.Fatalf("GetLatestByBlobID: %v", err)
	}
	if latest == nil || latest.Status != types.JobStatusExtracted {
		t.Fatalf("latest = %v", latest)
	}
}

func TestDocumentChunkRepoReplaceForBlob(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewDocumentChunkRepo(gdb, log)
	ctx := context.Background()

	tenantID := uuid.New()
	blobID := uuid.New()
	jobID := uuid.New()

	first := []*types.DocumentChunk{
		{ID: uuid.New(), TenantID: tenantID, BlobID: blobID, JobID: jobID, Seq: 0, Text: "old a"},
		{ID: uuid.New(), TenantID: tenantID, BlobID: blobID, JobID: jobID, Seq: 1, Text: "old b"},
	}
	if err := repo.ReplaceForBlob(ctx, nil, blobID, first); err != nil {
		t.Fatalf("ReplaceForBlob first: %v", err)
	}

	second := []*types.DocumentChunk{
		{ID: uuid.New(), TenantID: tenantID, BlobID: blobID, JobID: uuid.New(), Seq: 0, Text: "new a"},
	}
	if err := repo.ReplaceForBlob(ctx, nil, blobID, second); err != nil {
		t.Fatalf("ReplaceForBlob second: %v", err)
	}

	got, err := repo.GetByBlobID(ctx, nil, blobID)
	if err != nil {
		t.Fatalf("GetByBlobID: %v", err)
	}
	if len(got) != 1 || got[0].Text != "new a" {
		t.Fatalf("chunks after replace = %v", got)
	}
}

func TestDocumentChunkRepoOrdering(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewDocumentChunkRepo(gdb, log)
	ctx := context.Background()

	blobID := uuid.New()
	chunks := []*types.DocumentChunk{
		{ID: uuid.New(), TenantID: uuid.New(), BlobID: blobID, JobID: uuid.New(), Seq: 2, Text: "c"},
		{ID: uuid.New(), TenantID: uuid.New(), BlobID: blobID, JobID: uuid.New(), Seq: 0, Text: "a"},
		{ID: uuid.New(), TenantID: uuid.New(), BlobID: blobID, JobID: uuid.New(), Seq: 1, Text: "b"},
	}
	if err := repo.ReplaceForBlob(ctx, nil, blobID, chunks); err != nil {
		t.Fatalf("ReplaceForBlob: %v", err)
	}
	got, err := repo.GetByBlobID(ctx, nil, blobID)
	if err != nil {
		t.Fatalf("GetByBlobID: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("chunk %d = %q, want %q", i, got[i].Text, w)
		}
	}
}

func TestAgentMessageRepoRecentWindow(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewAgentMessageRepo(gdb, log)
	ctx := context.Background()

	sessionID := uuid.New()
	var msgs []*types.AgentMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, &types.AgentMessage{
			ID:        uuid.New(),
			SessionID: sessionID,
			Role:      types.AgentRoleUser,
			Content:   string(rune('a' + i)),
			Seq:       i,
		})
	}
	if _, err := repo.Create(ctx, nil, msgs); err != nil {
		t.Fatalf("Create: %v", err)
	}

	recent, err := repo.ListRecentBySessionID(ctx, nil, sessionID, 3)
	if err != nil {
		t.Fatalf("ListRecentBySessionID: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3", len(recent))
	}
	// Last three messages in chronological order.
	want := []int{2, 3, 4}
	for i, w := range want {
		if recent[i].Seq != w {
			t.Errorf("recent[%d].Seq = %d, want %d", i, recent[i].Seq, w)
		}
	}
}

func TestQAPairRepoReplaceForBlob(t *testing.T) {
	gdb, log := newTestDB(t)
	repo := NewQAPairRepo(gdb, log)
	ctx := context.Background()

	tenantID := uuid.New()
	blobID := uuid.New()
	first := []*types.QAPair{
		{ID: uuid.New(), TenantID: tenantID, BlobID: blobID, Question: "q1", Answer: "a1"},
	}
	if err := repo.ReplaceForBlob(ctx, nil, blobID, first); err != nil {
		t.Fatalf("ReplaceForBlob: %v", err)
	}
	second := []*types.QAPair{
		{ID: uuid.New(), TenantID: tenantID, BlobID: blobID, Question: "q2", Answer: "a2"},
		{ID: uuid.New(), TenantID: tenantID, BlobID: blobID, Question: "q3", Answer: "a3"},
	}
	if err := repo.ReplaceForBlob(ctx, nil, blobID, second); err != nil {
		t.Fatalf("ReplaceForBlob second: %v", err)
	}
	got, err := repo.ListByBlobID(ctx, nil, blobID)
	if err != nil {
		t.Fatalf("ListByBlobID: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("pairs = %v", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Error("nil should not be a unique violation")
	}
	if !isUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Error("gorm.ErrDuplicatedKey should map to unique violation")
	}
	if isUniqueViolation(gorm.ErrRecordNotFound) {
		t.Error("record-not-found is not a unique violation")
	}
}
