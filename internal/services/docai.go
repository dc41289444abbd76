package services

import (
	"context"
	"fmt"
	"os"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/docuvault/docuvault-backend/internal/logger"
)

// DocAIService runs Document AI OCR for formats the native extractor cannot
// read (PDF, scanned images). Optional: when DOCAI_PROCESSOR_NAME is unset the
// service is nil and PDF/image extraction jobs fail with a clear error.
type DocAIService interface {
	ExtractText(ctx context.Context, mimeType string, data []byte) (string, error)
	Close() error
}

type docAIService struct {
	log           *logger.Logger
	client        *documentai.DocumentProcessorClient
	processorName string
}

// NewDocAIService returns (nil, nil) when the processor is not configured so
// callers can treat the capability as absent rather than broken.
func NewDocAIService(ctx context.Context, log *logger.Logger) (DocAIService, error) {
	serviceLog := log.With("service", "DocAIService")

	processorName := os.Getenv("DOCAI_PROCESSOR_NAME")
	if processorName == "" {
		serviceLog.Warn("DOCAI_PROCESSOR_NAME not set, PDF and image extraction disabled")
		return nil, nil
	}

	endpoint := os.Getenv("DOCAI_ENDPOINT")
	if endpoint == "" {
		endpoint = "us-documentai.googleapis.com:443"
	}

	saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")
	opts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if saPath != "" {
		opts = append(opts, option.WithCredentialsFile(saPath))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("Failed to create documentai client: %w", err)
	}

	return &docAIService{
		log:           serviceLog,
		client:        client,
		processorName: processorName,
	}, nil
}

func (s *docAIService) ExtractText(ctx context.Context, mimeType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: s.processorName,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	}

	resp, err := s.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("documentai process failed: %w", err)
	}
	doc := resp.GetDocument()
	if doc == nil || doc.GetText() == "" {
		return "", fmt.Errorf("documentai returned no text")
	}
	return collapseWhitespace(doc.GetText()), nil
}

func (s *docAIService) Close() error {
	return s.client.Close()
}
