package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Extraction status values carried on blob_inventory. "none" means extraction
// has never been requested for the blob.
const (
	ExtractionStatusNone       = "none"
	ExtractionStatusPending    = "pending"
	ExtractionStatusProcessing = "processing"
	ExtractionStatusExtracted  = "extracted"
	ExtractionStatusFailed     = "failed"
)

type Folder struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Tenant    *Tenant    `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Name      string     `gorm:"column:name;not null" json:"name"`
	CreatedBy uuid.UUID  `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Folder) TableName() string {
	return "folder"
}

// BlobInventory tracks one binary object in the bucket and its extraction
// status. The extraction_job ledger references rows here; the two tables are
// only ever updated about an active job inside the same transaction.
type BlobInventory struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Tenant           *Tenant        `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	FolderID         *uuid.UUID     `gorm:"type:uuid;index" json:"folder_id,omitempty"`
	OriginalName     string         `gorm:"column:original_name;not null" json:"original_name"`
	MimeType         string         `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes        int64          `gorm:"column:size_bytes" json:"size_bytes"`
	Checksum         string         `gorm:"column:checksum" json:"checksum"`
	StorageKey       string         `gorm:"column:storage_key;not null" json:"storage_key"`
	FileURL          string         `gorm:"column:file_url" json:"file_url"`
	ExtractionStatus string         `gorm:"column:extraction_status;not null;default:'none';index" json:"extraction_status"`
	UploadedBy       uuid.UUID      `gorm:"type:uuid;not null" json:"uploaded_by"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (BlobInventory) TableName() string {
	return "blob_inventory"
}
