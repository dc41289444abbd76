package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusExtracted  = "extracted"
	JobStatusFailed     = "failed"
)

// ExtractionJob is one attempt ledger row for running content extraction
// against a blob. CorrelationID tags every log line and SSE event emitted on
// behalf of the job.
//
// Status machine: pending -> processing -> extracted | failed. A failed row
// becomes claimable again while attempts < max and last_error_at is older
// than the retry delay; a processing row with a stale heartbeat is treated
// as abandoned by a crashed worker and reclaimed.
type ExtractionJob struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	BlobID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"blob_id"`
	Blob          *BlobInventory `gorm:"constraint:OnDelete:CASCADE;foreignKey:BlobID;references:ID" json:"blob,omitempty"`
	CorrelationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"correlation_id"`
	RequestedBy   uuid.UUID      `gorm:"type:uuid;not null" json:"requested_by"`

	Status   string `gorm:"column:status;not null;index" json:"status"`
	Attempts int    `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error    string `gorm:"column:error" json:"error"`

	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ExtractionJob) TableName() string {
	return "extraction_job"
}

type DocumentChunk struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	BlobID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"blob_id"`
	Blob          *BlobInventory `gorm:"constraint:OnDelete:CASCADE;foreignKey:BlobID;references:ID" json:"blob,omitempty"`
	JobID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	Seq           int            `gorm:"column:seq;not null" json:"seq"`
	Text          string         `gorm:"column:text;not null" json:"text"`
	TokenEstimate int            `gorm:"column:token_estimate" json:"token_estimate"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunk"
}
