package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/services"
)

type BlobHandler struct {
	fileService services.FileService
	log         *logger.Logger
}

func NewBlobHandler(fileService services.FileService, log *logger.Logger) *BlobHandler {
	return &BlobHandler{fileService: fileService, log: log.With("handler", "BlobHandler")}
}

// Upload accepts multipart/form-data with a "file" part and an optional
// "folder_id" field.
func (h *BlobHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	folderID, err := parseOptionalUUID(c.PostForm("folder_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	defer f.Close()

	blob, err := h.fileService.UploadBlob(
		c.Request.Context(),
		folderID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		f,
	)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusCreated, blob)
}

func (h *BlobHandler) Get(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	blob, err := h.fileService.GetBlob(c.Request.Context(), blobID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, blob)
}

func (h *BlobHandler) DownloadURL(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	url, err := h.fileService.DownloadURL(c.Request.Context(), blobID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"url": url})
}

type moveBlobRequest struct {
	NewFolderID string `json:"new_folder_id"`
}

func (h *BlobHandler) Move(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	var req moveBlobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	newFolderID, err := parseOptionalUUID(req.NewFolderID)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	blob, err := h.fileService.MoveBlob(c.Request.Context(), blobID, newFolderID)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, blob)
}

func (h *BlobHandler) Delete(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.fileService.DeleteBlob(c.Request.Context(), blobID); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *BlobHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	blobs, err := h.fileService.SearchBlobs(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, blobs)
}
