package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QAPair struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	BlobID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"blob_id"`
	Blob           *BlobInventory `gorm:"constraint:OnDelete:CASCADE;foreignKey:BlobID;references:ID" json:"blob,omitempty"`
	Question       string         `gorm:"column:question;not null" json:"question"`
	Answer         string         `gorm:"column:answer;not null" json:"answer"`
	SourceChunkIDs datatypes.JSON `gorm:"column:source_chunk_ids;type:jsonb" json:"source_chunk_ids"`
	Model          string         `gorm:"column:model" json:"model"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (QAPair) TableName() string {
	return "qa_pair"
}
