package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/types"
)

// In production ids come from the uuid_generate_v4() column default, which
// sqlite cannot express. Sessions get explicit ids in these tests and
// agent_message carries no primary key so batch inserts without ids still
// land.
func newAgentTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	schema := []string{
		`CREATE TABLE "agent_session" (
			id TEXT PRIMARY KEY, tenant_id TEXT, user_id TEXT, title TEXT,
			memory_summary TEXT, message_count INTEGER, created_at DATETIME, updated_at DATETIME)`,
		`CREATE TABLE "agent_message" (
			id TEXT, session_id TEXT, role TEXT, content TEXT,
			tool_name TEXT, tool_payload TEXT, seq INTEGER, created_at DATETIME)`,
		`CREATE TABLE "blob_inventory" (
			id TEXT PRIMARY KEY, tenant_id TEXT, folder_id TEXT, original_name TEXT,
			mime_type TEXT, size_bytes INTEGER, checksum TEXT, storage_key TEXT, file_url TEXT,
			extraction_status TEXT, uploaded_by TEXT,
			created_at DATETIME, updated_at DATETIME, deleted_at DATETIME)`,
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

func scopedCtx(tenantID, userID uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		UserID:   userID,
		TenantID: tenantID,
	})
}

func seedSession(t *testing.T, repo repos.AgentSessionRepo, tenantID, userID uuid.UUID) *types.AgentSession {
	t.Helper()
	created, err := repo.Create(context.Background(), nil, []*types.AgentSession{{
		ID:       uuid.New(),
		TenantID: tenantID,
		UserID:   userID,
		Title:    "test session",
	}})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return created[0]
}

// echoTool records its invocation and returns a fixed string.
type echoTool struct {
	invoked int
	gotArgs map[string]any
}

func (e *echoTool) Name() string               { return "echo" }
func (e *echoTool) Description() string        { return "Echoes back a fixed result." }
func (e *echoTool) ArgsSchema() map[string]any { return map[string]any{"type": "object"} }
func (e *echoTool) Invoke(ctx context.Context, tenantID uuid.UUID, args map[string]any) (string, error) {
	e.invoked++
	e.gotArgs = args
	return "echo result", nil
}

func TestToolRegistry(t *testing.T) {
	log, _ := logger.New("dev")
	tool := &echoTool{}
	reg := NewToolRegistry(log, tool)

	if _, ok := reg.Get("echo"); !ok {
		t.Error("registered tool not found")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("unregistered tool found")
	}
	desc := reg.Describe()
	if !strings.Contains(desc, "echo") || !strings.Contains(desc, "Echoes back") {
		t.Errorf("Describe() = %q", desc)
	}
}

func TestLastSummaryCount(t *testing.T) {
	tests := []struct {
		summary string
		want    int
	}{
		{"", 0},
		{"plain summary with no stamp", 0},
		{"[through 12] things happened", 12},
		{"[through notanumber] x", 0},
	}
	for _, tt := range tests {
		got := lastSummaryCount(&types.AgentSession{MemorySummary: tt.summary})
		if got != tt.want {
			t.Errorf("lastSummaryCount(%q) = %d, want %d", tt.summary, got, tt.want)
		}
	}
}

func TestAgentSendMessageToolLoop(t *testing.T) {
	gdb, log := newAgentTestDB(t)
	sessionRepo := repos.NewAgentSessionRepo(gdb, log)
	messageRepo := repos.NewAgentMessageRepo(gdb, log)

	tool := &echoTool{}
	reg := NewToolRegistry(log, tool)

	// First call asks for the tool, second answers.
	ai := &fakeAI{responses: []map[string]any{
		{"action": "tool", "reply": "", "tool_name": "echo", "tool_args": map[string]any{"q": "hi"}},
		{"action": "respond", "reply": "final answer", "tool_name": "", "tool_args": map[string]any{}},
	}}

	ag := NewAgentService(gdb, log, ai, reg, sessionRepo, messageRepo)

	tenantID := uuid.New()
	userID := uuid.New()
	ctx := scopedCtx(tenantID, userID)
	session := seedSession(t, sessionRepo, tenantID, userID)

	turn, err := ag.SendMessage(ctx, session.ID, "do the thing")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if turn.Reply != "final answer" {
		t.Errorf("reply = %q", turn.Reply)
	}
	if tool.invoked != 1 {
		t.Errorf("tool invoked %d times, want 1", tool.invoked)
	}
	if got, _ := tool.gotArgs["q"].(string); got != "hi" {
		t.Errorf("tool args = %v", tool.gotArgs)
	}

	// user + tool + assistant persisted in seq order.
	fresh, messages, err := ag.GetTranscript(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(messages))
	}
	wantRoles := []string{types.AgentRoleUser, types.AgentRoleTool, types.AgentRoleAssistant}
	for i, want := range wantRoles {
		if messages[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, messages[i].Role, want)
		}
		if messages[i].Seq != i {
			t.Errorf("message %d seq = %d, want %d", i, messages[i].Seq, i)
		}
	}
	if messages[1].ToolName != "echo" || messages[1].Content != "echo result" {
		t.Errorf("tool message = %+v", messages[1])
	}
	if fresh.MessageCount != 3 {
		t.Errorf("message_count = %d, want 3", fresh.MessageCount)
	}
}

func TestAgentSendMessageUnknownTool(t *testing.T) {
	gdb, log := newAgentTestDB(t)
	sessionRepo := repos.NewAgentSessionRepo(gdb, log)
	messageRepo := repos.NewAgentMessageRepo(gdb, log)

	ai := &fakeAI{responses: []map[string]any{
		{"action": "tool", "reply": "", "tool_name": "bogus", "tool_args": map[string]any{}},
		{"action": "respond", "reply": "recovered", "tool_name": "", "tool_args": map[string]any{}},
	}}
	ag := NewAgentService(gdb, log, ai, NewToolRegistry(log), sessionRepo, messageRepo)

	tenantID, userID := uuid.New(), uuid.New()
	ctx := scopedCtx(tenantID, userID)
	session := seedSession(t, sessionRepo, tenantID, userID)

	turn, err := ag.SendMessage(ctx, session.ID, "use a tool that does not exist")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if turn.Reply != "recovered" {
		t.Errorf("reply = %q", turn.Reply)
	}
	// The failed call is recorded and fed back, not fatal.
	if !strings.Contains(ai.lastUser, `unknown tool "bogus"`) {
		t.Errorf("tool error not in transcript: %q", ai.lastUser)
	}
}

func TestAgentSendMessageToolBudget(t *testing.T) {
	gdb, log := newAgentTestDB(t)
	sessionRepo := repos.NewAgentSessionRepo(gdb, log)
	messageRepo := repos.NewAgentMessageRepo(gdb, log)

	tool := &echoTool{}
	reg := NewToolRegistry(log, tool)

	// The model keeps asking for tools; the loop must cut it off after
	// maxToolRounds and take the reply it has.
	toolCall := map[string]any{"action": "tool", "reply": "forced", "tool_name": "echo", "tool_args": map[string]any{}}
	ai := &fakeAI{responses: []map[string]any{toolCall, toolCall, toolCall, toolCall, toolCall}}

	ag := NewAgentService(gdb, log, ai, reg, sessionRepo, messageRepo)
	tenantID, userID := uuid.New(), uuid.New()
	ctx := scopedCtx(tenantID, userID)
	session := seedSession(t, sessionRepo, tenantID, userID)

	turn, err := ag.SendMessage(ctx, session.ID, "loop forever")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if tool.invoked != maxToolRounds {
		t.Errorf("tool invoked %d times, want %d", tool.invoked, maxToolRounds)
	}
	if turn.Reply != "forced" {
		t.Errorf("reply = %q", turn.Reply)
	}
}

func TestAgentSessionIsolation(t *testing.T) {
	gdb, log := newAgentTestDB(t)
	sessionRepo := repos.NewAgentSessionRepo(gdb, log)
	messageRepo := repos.NewAgentMessageRepo(gdb, log)
	ag := NewAgentService(gdb, log, &fakeAI{}, NewToolRegistry(log), sessionRepo, messageRepo)

	tenantID := uuid.New()
	owner := uuid.New()
	session := seedSession(t, sessionRepo, tenantID, owner)

	// Another user in the same tenant cannot read the session.
	otherCtx := scopedCtx(tenantID, uuid.New())
	if _, _, err := ag.GetTranscript(otherCtx, session.ID); err == nil {
		t.Error("expected other user's transcript read to fail")
	}

	// Another tenant cannot either.
	crossCtx := scopedCtx(uuid.New(), owner)
	if _, _, err := ag.GetTranscript(crossCtx, session.ID); err == nil {
		t.Error("expected cross-tenant transcript read to fail")
	}

	// The owner can.
	if _, _, err := ag.GetTranscript(scopedCtx(tenantID, owner), session.ID); err != nil {
		t.Errorf("owner transcript read failed: %v", err)
	}
}

func TestAgentRequiresScope(t *testing.T) {
	gdb, log := newAgentTestDB(t)
	ag := NewAgentService(gdb, log, &fakeAI{}, NewToolRegistry(log),
		repos.NewAgentSessionRepo(gdb, log), repos.NewAgentMessageRepo(gdb, log))

	if _, err := ag.CreateSession(context.Background(), "no scope"); err == nil {
		t.Error("expected CreateSession without tenant scope to fail")
	}
	if _, err := ag.SendMessage(scopedCtx(uuid.New(), uuid.New()), uuid.New(), "   "); err == nil {
		t.Error("expected empty message to fail")
	}
}

func TestGetDocumentTextToolScopesTenant(t *testing.T) {
	gdb, log := newAgentTestDB(t)
	blobRepo := repos.NewBlobInventoryRepo(gdb, log)

	tenantA := uuid.New()
	tenantB := uuid.New()
	otherBlobID := uuid.New()
	_, err := blobRepo.Create(context.Background(), nil, []*types.BlobInventory{
		{ID: uuid.New(), TenantID: tenantA, OriginalName: "report.pdf", StorageKey: "a", ExtractionStatus: types.ExtractionStatusNone, UploadedBy: uuid.New()},
		{ID: otherBlobID, TenantID: tenantB, OriginalName: "report-secret.pdf", StorageKey: "b", ExtractionStatus: types.ExtractionStatusNone, UploadedBy: uuid.New()},
	})
	if err != nil {
		t.Fatalf("seed blobs: %v", err)
	}

	tool := NewGetDocumentTextTool(blobRepo, repos.NewDocumentChunkRepo(gdb, log))

	// Tenant B's blob is invisible from tenant A's scope.
	if _, err := tool.Invoke(context.Background(), tenantA, map[string]any{"blob_id": otherBlobID.String()}); err == nil {
		t.Error("expected cross-tenant tool access to fail")
	}
	if _, err := tool.Invoke(context.Background(), tenantA, map[string]any{"blob_id": "not-a-uuid"}); err == nil {
		t.Error("expected malformed blob_id to fail")
	}
}
