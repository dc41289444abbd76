package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/types"
)

// toolTextLimit caps what a single tool call can push into the prompt.
const toolTextLimit = 6000

// AgentTool is one capability the agent can invoke during a chat turn. Args
// arrive as the model's JSON object; the result string is fed back verbatim.
type AgentTool interface {
	Name() string
	Description() string
	ArgsSchema() map[string]any
	Invoke(ctx context.Context, tenantID uuid.UUID, args map[string]any) (string, error)
}

type ToolRegistry struct {
	log   *logger.Logger
	tools map[string]AgentTool
	order []string
}

func NewToolRegistry(log *logger.Logger, tools ...AgentTool) *ToolRegistry {
	reg := &ToolRegistry{
		log:   log.With("component", "ToolRegistry"),
		tools: make(map[string]AgentTool),
	}
	for _, t := range tools {
		reg.tools[t.Name()] = t
		reg.order = append(reg.order, t.Name())
	}
	return reg
}

func (tr *ToolRegistry) Get(name string) (AgentTool, bool) {
	t, ok := tr.tools[name]
	return t, ok
}

// Describe renders the tool catalog for the system prompt.
func (tr *ToolRegistry) Describe() string {
	var b strings.Builder
	for _, name := range tr.order {
		t := tr.tools[name]
		schema, _ := json.Marshal(t.ArgsSchema())
		fmt.Fprintf(&b, "- %s: %s\n  args: %s\n", t.Name(), t.Description(), schema)
	}
	return b.String()
}

// searchFilesTool finds files in the tenant by name.
type searchFilesTool struct {
	blobRepo repos.BlobInventoryRepo
}

func NewSearchFilesTool(blobRepo repos.BlobInventoryRepo) AgentTool {
	return &searchFilesTool{blobRepo: blobRepo}
}

func (t *searchFilesTool) Name() string { return "search_files" }

func (t *searchFilesTool) Description() string {
	return "Search the tenant's files by name. Returns file ids, names and extraction status."
}

func (t *searchFilesTool) ArgsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []string{"query"},
	}
}

func (t *searchFilesTool) Invoke(ctx context.Context, tenantID uuid.UUID, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("search_files requires a query")
	}
	blobs, err := t.blobRepo.SearchByName(ctx, nil, tenantID, query, 10)
	if err != nil {
		return "", err
	}
	if len(blobs) == 0 {
		return "No files matched.", nil
	}
	var b strings.Builder
	for _, blob := range blobs {
		fmt.Fprintf(&b, "%s | %s | extraction=%s\n", blob.ID, blob.OriginalName, blob.ExtractionStatus)
	}
	return b.String(), nil
}

// getDocumentTextTool returns the extracted text of a file.
type getDocumentTextTool struct {
	blobRepo  repos.BlobInventoryRepo
	chunkRepo repos.DocumentChunkRepo
}

func NewGetDocumentTextTool(blobRepo repos.BlobInventoryRepo, chunkRepo repos.DocumentChunkRepo) AgentTool {
	return &getDocumentTextTool{blobRepo: blobRepo, chunkRepo: chunkRepo}
}

func (t *getDocumentTextTool) Name() string { return "get_document_text" }

func (t *getDocumentTextTool) Description() string {
	return "Fetch the extracted text of a file by its id. Only works for files whose extraction finished."
}

func (t *getDocumentTextTool) ArgsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"blob_id": map[string]any{"type": "string"},
		},
		"required": []string{"blob_id"},
	}
}

func (t *getDocumentTextTool) Invoke(ctx context.Context, tenantID uuid.UUID, args map[string]any) (string, error) {
	blob, err := toolBlob(ctx, t.blobRepo, tenantID, args)
	if err != nil {
		return "", err
	}
	chunks, err := t.chunkRepo.GetByBlobID(ctx, nil, blob.ID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("file %s has no extracted text", blob.OriginalName)
	}
	var b strings.Builder
	for _, ch := range chunks {
		if b.Len()+len(ch.Text) > toolTextLimit {
			b.WriteString("\n[truncated]")
			break
		}
		b.WriteString(ch.Text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// lookupQATool returns stored Q&A pairs for a file.
type lookupQATool struct {
	blobRepo repos.BlobInventoryRepo
	qaRepo   repos.QAPairRepo
}

func NewLookupQATool(blobRepo repos.BlobInventoryRepo, qaRepo repos.QAPairRepo) AgentTool {
	return &lookupQATool{blobRepo: blobRepo, qaRepo: qaRepo}
}

func (t *lookupQATool) Name() string { return "lookup_qa" }

func (t *lookupQATool) Description() string {
	return "List the generated question/answer pairs for a file by its id."
}

func (t *lookupQATool) ArgsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"blob_id": map[string]any{"type": "string"},
		},
		"required": []string{"blob_id"},
	}
}

func (t *lookupQATool) Invoke(ctx context.Context, tenantID uuid.UUID, args map[string]any) (string, error) {
	blob, err := toolBlob(ctx, t.blobRepo, tenantID, args)
	if err != nil {
		return "", err
	}
	pairs, err := t.qaRepo.ListByBlobID(ctx, nil, blob.ID)
	if err != nil {
		return "", err
	}
	if len(pairs) == 0 {
		return "No Q&A pairs exist for this file.", nil
	}
	var b strings.Builder
	for i, p := range pairs {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, p.Question, i+1, p.Answer)
		if b.Len() > toolTextLimit {
			b.WriteString("[truncated]")
			break
		}
	}
	return b.String(), nil
}

// toolBlob resolves the blob_id arg inside the tenant. Tools never see other
// tenants' files.
func toolBlob(ctx context.Context, blobRepo repos.BlobInventoryRepo, tenantID uuid.UUID, args map[string]any) (*types.BlobInventory, error) {
	raw, _ := args["blob_id"].(string)
	blobID, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("blob_id is not a valid id")
	}
	blobs, err := blobRepo.GetByIDs(ctx, nil, []uuid.UUID{blobID})
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 || blobs[0].TenantID != tenantID {
		return nil, fmt.Errorf("file not found")
	}
	return blobs[0], nil
}
