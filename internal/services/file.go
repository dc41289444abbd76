package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/cache"
	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/normalization"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/types"
	"github.com/docuvault/docuvault-backend/internal/utils"
)

const maxUploadBytes = 64 << 20

// FolderListing is one level of the tree: subfolders plus the blobs that live
// directly in the folder.
type FolderListing struct {
	Folder  *types.Folder          `json:"folder,omitempty"`
	Folders []*types.Folder        `json:"folders"`
	Blobs   []*types.BlobInventory `json:"blobs"`
}

type FileService interface {
	CreateFolder(ctx context.Context, parentID *uuid.UUID, name string) (*types.Folder, error)
	ListFolder(ctx context.Context, folderID *uuid.UUID) (*FolderListing, error)
	RenameFolder(ctx context.Context, folderID uuid.UUID, name string) (*types.Folder, error)
	MoveFolder(ctx context.Context, folderID uuid.UUID, newParentID *uuid.UUID) (*types.Folder, error)
	DeleteFolder(ctx context.Context, folderID uuid.UUID) error

	UploadBlob(ctx context.Context, folderID *uuid.UUID, originalName, mimeType string, content io.Reader) (*types.BlobInventory, error)
	GetBlob(ctx context.Context, blobID uuid.UUID) (*types.BlobInventory, error)
	DownloadURL(ctx context.Context, blobID uuid.UUID) (string, error)
	MoveBlob(ctx context.Context, blobID uuid.UUID, newFolderID *uuid.UUID) (*types.BlobInventory, error)
	DeleteBlob(ctx context.Context, blobID uuid.UUID) error
	SearchBlobs(ctx context.Context, query string, limit int) ([]*types.BlobInventory, error)
}

type fileService struct {
	db            *gorm.DB
	log           *logger.Logger
	folderRepo    repos.FolderRepo
	blobRepo      repos.BlobInventoryRepo
	chunkRepo     repos.DocumentChunkRepo
	jobRepo       repos.ExtractionJobRepo
	bucketService BucketService
	cache         cache.Cache
	downloadTTL   time.Duration
}

func NewFileService(
	db *gorm.DB,
	log *logger.Logger,
	folderRepo repos.FolderRepo,
	blobRepo repos.BlobInventoryRepo,
	chunkRepo repos.DocumentChunkRepo,
	jobRepo repos.ExtractionJobRepo,
	bucketService BucketService,
	c cache.Cache,
) FileService {
	serviceLog := log.With("service", "FileService")
	ttlMinutes := utils.GetEnvAsInt("DOWNLOAD_URL_TTL_MINUTES", 15, log)
	if ttlMinutes <= 0 {
		ttlMinutes = 15
	}
	return &fileService{
		db:            db,
		log:           serviceLog,
		folderRepo:    folderRepo,
		blobRepo:      blobRepo,
		chunkRepo:     chunkRepo,
		jobRepo:       jobRepo,
		bucketService: bucketService,
		cache:         c,
		downloadTTL:   time.Duration(ttlMinutes) * time.Minute,
	}
}

func (fs *fileService) mustTenantUser(ctx context.Context) (*requestdata.RequestData, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil || rd.TenantID == uuid.Nil {
		return nil, fmt.Errorf("No tenant scope on request")
	}
	return rd, nil
}

// folderInTenant loads a folder and verifies it belongs to the caller's
// tenant. Cross-tenant ids read as not found.
func (fs *fileService) folderInTenant(ctx context.Context, tx *gorm.DB, tenantID, folderID uuid.UUID) (*types.Folder, error) {
	folders, err := fs.folderRepo.GetByIDs(ctx, tx, []uuid.UUID{folderID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load folder: %w", err)
	}
	if len(folders) == 0 || folders[0].TenantID != tenantID {
		return nil, fmt.Errorf("Folder not found")
	}
	return folders[0], nil
}

func (fs *fileService) blobInTenant(ctx context.Context, tx *gorm.DB, tenantID, blobID uuid.UUID) (*types.BlobInventory, error) {
	blobs, err := fs.blobRepo.GetByIDs(ctx, tx, []uuid.UUID{blobID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load blob: %w", err)
	}
	if len(blobs) == 0 || blobs[0].TenantID != tenantID {
		return nil, fmt.Errorf("File not found")
	}
	return blobs[0], nil
}

func (fs *fileService) CreateFolder(ctx context.Context, parentID *uuid.UUID, name string) (*types.Folder, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return nil, err
	}
	name = normalization.TrimInputString(name)
	if name == "" {
		return nil, fmt.Errorf("A folder name is required")
	}

	if parentID != nil {
		if _, err := fs.folderInTenant(ctx, nil, rd.TenantID, *parentID); err != nil {
			return nil, err
		}
	}

	created, err := fs.folderRepo.Create(ctx, nil, []*types.Folder{{
		TenantID:  rd.TenantID,
		ParentID:  parentID,
		Name:      name,
		CreatedBy: rd.UserID,
	}})
	if err != nil {
		// Sibling name uniqueness is enforced by a partial unique index.
		return nil, fmt.Errorf("Failed to create folder (name may already exist here): %w", err)
	}
	return created[0], nil
}

func (fs *fileService) ListFolder(ctx context.Context, folderID *uuid.UUID) (*FolderListing, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return nil, err
	}

	listing := &FolderListing{}
	if folderID != nil {
		folder, err := fs.folderInTenant(ctx, nil, rd.TenantID, *folderID)
		if err != nil {
			return nil, err
		}
		listing.Folder = folder
	}

	listing.Folders, err = fs.folderRepo.ListByParent(ctx, nil, rd.TenantID, folderID)
	if err != nil {
		return nil, fmt.Errorf("Failed to list folders: %w", err)
	}
	listing.Blobs, err = fs.blobRepo.ListByFolder(ctx, nil, rd.TenantID, folderID)
	if err != nil {
		return nil, fmt.Errorf("Failed to list files: %w", err)
	}
	return listing, nil
}

func (fs *fileService) RenameFolder(ctx context.Context, folderID uuid.UUID, name string) (*types.Folder, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return nil, err
	}
	name = normalization.TrimInputString(name)
	if name == "" {
		return nil, fmt.Errorf("A folder name is required")
	}
	folder, err := fs.folderInTenant(ctx, nil, rd.TenantID, folderID)
	if err != nil {
		return nil, err
	}
	if err := fs.folderRepo.UpdateFields(ctx, nil, folder.ID, map[string]interface{}{"name": name}); err != nil {
		return nil, fmt.Errorf("Failed to rename folder (name may already exist here): %w", err)
	}
	folder.Name = name
	return folder, nil
}

// MoveFolder re-parents a folder. Moving a folder under itself or any of its
// descendants is rejected by walking the new parent's ancestor chain.
func (fs *fileService) MoveFolder(ctx context.Context, folderID uuid.UUID, newParentID *uuid.UUID) (*types.Folder, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return nil, err
	}

	var moved *types.Folder
	err = fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := fs.folderInTenant(ctx, tx, rd.TenantID, folderID)
		if err != nil {
			return err
		}

		if newParentID != nil {
			if *newParentID == folderID {
				return fmt.Errorf("Cannot move a folder into itself")
			}
			parent, err := fs.folderInTenant(ctx, tx, rd.TenantID, *newParentID)
			if err != nil {
				return err
			}
			// Walk up from the new parent; hitting the moved folder means a cycle.
			cursor := parent
			for cursor.ParentID != nil {
				if *cursor.ParentID == folderID {
					return fmt.Errorf("Cannot move a folder into its own subtree")
				}
				cursor, err = fs.folderInTenant(ctx, tx, rd.TenantID, *cursor.ParentID)
				if err != nil {
					return err
				}
			}
		}

		if err := fs.folderRepo.UpdateFields(ctx, tx, folder.ID, map[string]interface{}{"parent_id": newParentID}); err != nil {
			return fmt.Errorf("Failed to move folder: %w", err)
		}
		folder.ParentID = newParentID
		moved = folder
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// DeleteFolder only removes empty folders. Deleting a subtree stays an
// explicit client-side walk so nobody nukes a tree by accident.
func (fs *fileService) DeleteFolder(ctx context.Context, folderID uuid.UUID) error {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return err
	}
	return fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := fs.folderInTenant(ctx, tx, rd.TenantID, folderID)
		if err != nil {
			return err
		}
		children, err := fs.folderRepo.CountChildren(ctx, tx, folder.ID)
		if err != nil {
			return fmt.Errorf("Failed to count folder contents: %w", err)
		}
		if children > 0 {
			return fmt.Errorf("Folder is not empty")
		}
		return fs.folderRepo.FullDeleteByIDs(ctx, tx, []uuid.UUID{folder.ID})
	})
}

func (fs *fileService) UploadBlob(ctx context.Context, folderID *uuid.UUID, originalName, mimeType string, content io.Reader) (*types.BlobInventory, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return nil, err
	}
	originalName = normalization.TrimInputString(originalName)
	if originalName == "" {
		return nil, fmt.Errorf("A file name is required")
	}
	if folderID != nil {
		if _, err := fs.folderInTenant(ctx, nil, rd.TenantID, *folderID); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(io.LimitReader(content, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("Failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("Uploaded file is empty")
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("Uploaded file exceeds the %d byte limit", maxUploadBytes)
	}

	sum := sha256.Sum256(data)
	blobID := uuid.New()
	storageKey := fmt.Sprintf("tenants/%s/blobs/%s/%s", rd.TenantID, blobID, originalName)

	if err := fs.bucketService.UploadFile(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("Failed to upload file: %w", err)
	}

	blob := &types.BlobInventory{
		ID:               blobID,
		TenantID:         rd.TenantID,
		FolderID:         folderID,
		OriginalName:     originalName,
		MimeType:         mimeType,
		SizeBytes:        int64(len(data)),
		Checksum:         hex.EncodeToString(sum[:]),
		StorageKey:       storageKey,
		FileURL:          fs.bucketService.GetPublicURL(storageKey),
		ExtractionStatus: types.ExtractionStatusNone,
		UploadedBy:       rd.UserID,
	}
	created, err := fs.blobRepo.Create(ctx, nil, []*types.BlobInventory{blob})
	if err != nil {
		// Inventory row failed; remove the orphaned object.
		if delErr := fs.bucketService.DeleteFile(ctx, storageKey); delErr != nil {
			fs.log.Warn("Failed to clean up orphaned object", "key", storageKey, "error", delErr.Error())
		}
		return nil, fmt.Errorf("Failed to record file: %w", err)
	}

	fs.log.Info("File uploaded", "blobID", blobID, "tenantID", rd.TenantID, "sizeBytes", len(data))
	return created[0], nil
}

func (fs *fileService) GetBlob(ctx context.Context, blobID uuid.UUID) (*types.BlobInventory, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return nil, err
	}
	return fs.blobInTenant(ctx, nil, rd.TenantID, blobID)
}

func (fs *fileService) DownloadURL(ctx context.Context, blobID uuid.UUID) (string, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return "", err
	}
	blob, err := fs.blobInTenant(ctx, nil, rd.TenantID, blobID)
	if err != nil {
		return "", err
	}
	return fs.bucketService.SignedURL(blob.StorageKey, fs.downloadTTL)
}

func (fs *fileService) MoveBlob(ctx context.Context, blobID uuid.UUID, newFolderID *uuid.UUID) (*types.BlobInventory, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return nil, err
	}
	blob, err := fs.blobInTenant(ctx, nil, rd.TenantID, blobID)
	if err != nil {
		return nil, err
	}
	if newFolderID != nil {
		if _, err := fs.folderInTenant(ctx, nil, rd.TenantID, *newFolderID); err != nil {
			return nil, err
		}
	}
	if err := fs.blobRepo.UpdateFields(ctx, nil, blob.ID, map[string]interface{}{"folder_id": newFolderID}); err != nil {
		return nil, fmt.Errorf("Failed to move file: %w", err)
	}
	blob.FolderID = newFolderID
	return blob, nil
}

// DeleteBlob soft-deletes the inventory row and drops derived chunks. The
// bucket object and the Redis status mirror are removed best-effort; a leak
// there is a cost problem, not a correctness one.
func (fs *fileService) DeleteBlob(ctx context.Context, blobID uuid.UUID) error {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return err
	}
	blob, err := fs.blobInTenant(ctx, nil, rd.TenantID, blobID)
	if err != nil {
		return err
	}

	err = fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fs.chunkRepo.FullDeleteByBlobIDs(ctx, tx, []uuid.UUID{blob.ID}); err != nil {
			return fmt.Errorf("Failed to delete extracted chunks: %w", err)
		}
		return fs.blobRepo.SoftDeleteByIDs(ctx, tx, []uuid.UUID{blob.ID})
	})
	if err != nil {
		return err
	}

	if delErr := fs.bucketService.DeleteFile(ctx, blob.StorageKey); delErr != nil {
		fs.log.Warn("Failed to delete bucket object", "key", blob.StorageKey, "error", delErr.Error())
	}

	// Drop the job-status mirror so pollers of a deleted file read a miss,
	// not a day-old status.
	if job, jobErr := fs.jobRepo.GetLatestByBlobID(ctx, nil, blob.ID); jobErr != nil {
		fs.log.Warn("Failed to look up extraction job", "blobID", blob.ID, "error", jobErr.Error())
	} else if job != nil {
		if delErr := fs.cache.Delete(ctx, cache.JobStatusKey(job.ID)); delErr != nil {
			fs.log.Warn("Failed to drop cached job status", "jobID", job.ID, "error", delErr.Error())
		}
	}

	fs.log.Info("File deleted", "blobID", blob.ID, "tenantID", rd.TenantID)
	return nil
}

func (fs *fileService) SearchBlobs(ctx context.Context, query string, limit int) ([]*types.BlobInventory, error) {
	rd, err := fs.mustTenantUser(ctx)
	if err != nil {
		return nil, err
	}
	query = normalization.TrimInputString(query)
	if query == "" {
		return []*types.BlobInventory{}, nil
	}
	return fs.blobRepo.SearchByName(ctx, nil, rd.TenantID, query, limit)
}
