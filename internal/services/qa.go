package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/config"
	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/sse"
	"github.com/docuvault/docuvault-backend/internal/types"
)

// qaBatchChunks is how many consecutive chunks feed one generation call.
const qaBatchChunks = 4

type QAService interface {
	// GenerateForBlob regenerates the blob's Q&A set from its extracted
	// chunks. Called by the extraction worker after a successful job and by
	// the regenerate endpoint.
	GenerateForBlob(ctx context.Context, tenantID, blobID uuid.UUID) error
	ListForBlob(ctx context.Context, blobID uuid.UUID) ([]*types.QAPair, error)
	Regenerate(ctx context.Context, blobID uuid.UUID) error
	DeleteForBlob(ctx context.Context, blobID uuid.UUID) error
}

type qaService struct {
	dbc       *gorm.DB
	log       *logger.Logger
	cfg       config.WorkerConfig
	ai        AIClient
	qaRepo    repos.QAPairRepo
	chunkRepo repos.DocumentChunkRepo
	blobRepo  repos.BlobInventoryRepo
	hub       *sse.SSEHub
}

func NewQAService(
	dbc *gorm.DB,
	log *logger.Logger,
	cfg config.WorkerConfig,
	ai AIClient,
	qaRepo repos.QAPairRepo,
	chunkRepo repos.DocumentChunkRepo,
	blobRepo repos.BlobInventoryRepo,
	hub *sse.SSEHub,
) QAService {
	return &qaService{
		dbc:       dbc,
		log:       log.With("service", "QAService"),
		cfg:       cfg,
		ai:        ai,
		qaRepo:    qaRepo,
		chunkRepo: chunkRepo,
		blobRepo:  blobRepo,
		hub:       hub,
	}
}

var qaPairSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"pairs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
					"answer":   map[string]any{"type": "string"},
				},
				"required":             []string{"question", "answer"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"pairs"},
	"additionalProperties": false,
}

const qaSystemPrompt = `You generate study question/answer pairs from document excerpts.
Questions must be answerable from the excerpt alone. Answers must be concise and factual.
Do not invent information that is not in the excerpt.`

func (qs *qaService) GenerateForBlob(ctx context.Context, tenantID, blobID uuid.UUID) error {
	chunks, err := qs.chunkRepo.GetByBlobID(ctx, nil, blobID)
	if err != nil {
		return fmt.Errorf("Failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("No extracted content for blob %s", blobID)
	}

	batches := batchChunks(chunks, qaBatchChunks)
	perBatch := qs.cfg.QAPairsPerBlob / len(batches)
	if perBatch < 1 {
		perBatch = 1
	}

	var mu sync.Mutex
	var pairs []*types.QAPair

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(qs.cfg.QAMaxConcurrency)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			generated, err := qs.generateForBatch(gctx, tenantID, blobID, batch, perBatch)
			if err != nil {
				return err
			}
			mu.Lock()
			pairs = append(pairs, generated...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("Model produced no Q&A pairs")
	}

	if err := qs.qaRepo.ReplaceForBlob(ctx, nil, blobID, pairs); err != nil {
		return fmt.Errorf("Failed to save Q&A pairs: %w", err)
	}

	qs.hub.Broadcast(sse.SSEMessage{
		Channel: TenantChannel(tenantID),
		Event:   sse.SSEEventQAGenerated,
		Data: map[string]any{
			"blob_id":    blobID,
			"pair_count": len(pairs),
		},
	})
	qs.log.Info("Q&A generated", "blobID", blobID, "pairCount", len(pairs))
	return nil
}

func (qs *qaService) generateForBatch(ctx context.Context, tenantID, blobID uuid.UUID, batch []*types.DocumentChunk, count int) ([]*types.QAPair, error) {
	var excerpt strings.Builder
	chunkIDs := make([]uuid.UUID, 0, len(batch))
	for _, ch := range batch {
		excerpt.WriteString(ch.Text)
		excerpt.WriteString("\n\n")
		chunkIDs = append(chunkIDs, ch.ID)
	}

	user := fmt.Sprintf("Generate %d question/answer pairs from this excerpt:\n\n%s", count, excerpt.String())
	obj, err := qs.ai.GenerateJSON(ctx, qaSystemPrompt, user, "qa_pairs", qaPairSchema)
	if err != nil {
		return nil, fmt.Errorf("Q&A generation call failed: %w", err)
	}

	rawPairs, ok := obj["pairs"].([]any)
	if !ok {
		return nil, fmt.Errorf("model output missing pairs array")
	}

	sourceIDs, _ := json.Marshal(chunkIDs)
	var out []*types.QAPair
	for _, rp := range rawPairs {
		m, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		question, _ := m["question"].(string)
		answer, _ := m["answer"].(string)
		question = strings.TrimSpace(question)
		answer = strings.TrimSpace(answer)
		if question == "" || answer == "" {
			continue
		}
		out = append(out, &types.QAPair{
			TenantID:       tenantID,
			BlobID:         blobID,
			Question:       question,
			Answer:         answer,
			SourceChunkIDs: datatypes.JSON(sourceIDs),
			Model:          qs.ai.Model(),
		})
	}
	return out, nil
}

func (qs *qaService) ListForBlob(ctx context.Context, blobID uuid.UUID) ([]*types.QAPair, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TenantID == uuid.Nil {
		return nil, fmt.Errorf("No tenant scope on request")
	}
	if _, err := qs.blobForTenant(ctx, rd.TenantID, blobID); err != nil {
		return nil, err
	}
	return qs.qaRepo.ListByBlobID(ctx, nil, blobID)
}

func (qs *qaService) Regenerate(ctx context.Context, blobID uuid.UUID) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TenantID == uuid.Nil {
		return fmt.Errorf("No tenant scope on request")
	}
	blob, err := qs.blobForTenant(ctx, rd.TenantID, blobID)
	if err != nil {
		return err
	}
	if blob.ExtractionStatus != types.ExtractionStatusExtracted {
		return fmt.Errorf("File has no extracted content yet")
	}
	return qs.GenerateForBlob(ctx, rd.TenantID, blobID)
}

func (qs *qaService) DeleteForBlob(ctx context.Context, blobID uuid.UUID) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TenantID == uuid.Nil {
		return fmt.Errorf("No tenant scope on request")
	}
	if _, err := qs.blobForTenant(ctx, rd.TenantID, blobID); err != nil {
		return err
	}
	if err := qs.qaRepo.ReplaceForBlob(ctx, nil, blobID, nil); err != nil {
		return fmt.Errorf("Failed to delete Q&A pairs: %w", err)
	}
	return nil
}

func (qs *qaService) blobForTenant(ctx context.Context, tenantID, blobID uuid.UUID) (*types.BlobInventory, error) {
	blobs, err := qs.blobRepo.GetByIDs(ctx, nil, []uuid.UUID{blobID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load blob: %w", err)
	}
	if len(blobs) == 0 || blobs[0].TenantID != tenantID {
		return nil, fmt.Errorf("File not found")
	}
	return blobs[0], nil
}

func batchChunks(chunks []*types.DocumentChunk, size int) [][]*types.DocumentChunk {
	if size <= 0 {
		size = 1
	}
	var out [][]*types.DocumentChunk
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[i:end])
	}
	return out
}
