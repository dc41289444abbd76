package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/services"
)

type FolderHandler struct {
	fileService services.FileService
	log         *logger.Logger
}

func NewFolderHandler(fileService services.FileService, log *logger.Logger) *FolderHandler {
	return &FolderHandler{fileService: fileService, log: log.With("handler", "FolderHandler")}
}

// parseOptionalUUID reads an optional uuid from a string; empty means nil.
func parseOptionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

type createFolderRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID string `json:"parent_id"`
}

func (h *FolderHandler) Create(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	parentID, err := parseOptionalUUID(req.ParentID)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	folder, err := h.fileService.CreateFolder(c.Request.Context(), parentID, req.Name)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusCreated, folder)
}

// List returns the root level when no folder query param is given.
func (h *FolderHandler) List(c *gin.Context) {
	folderID, err := parseOptionalUUID(c.Query("folder"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	listing, err := h.fileService.ListFolder(c.Request.Context(), folderID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, listing)
}

type renameFolderRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *FolderHandler) Rename(c *gin.Context) {
	folderID, err := uuid.Parse(c.Param("folderID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	var req renameFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	folder, err := h.fileService.RenameFolder(c.Request.Context(), folderID, req.Name)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, folder)
}

type moveFolderRequest struct {
	NewParentID string `json:"new_parent_id"`
}

func (h *FolderHandler) Move(c *gin.Context) {
	folderID, err := uuid.Parse(c.Param("folderID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	var req moveFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	newParentID, err := parseOptionalUUID(req.NewParentID)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	folder, err := h.fileService.MoveFolder(c.Request.Context(), folderID, newParentID)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, folder)
}

func (h *FolderHandler) Delete(c *gin.Context) {
	folderID, err := uuid.Parse(c.Param("folderID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.fileService.DeleteFolder(c.Request.Context(), folderID); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}
