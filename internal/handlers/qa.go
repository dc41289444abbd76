package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/services"
)

type QAHandler struct {
	qaService services.QAService
	log       *logger.Logger
}

func NewQAHandler(qaService services.QAService, log *logger.Logger) *QAHandler {
	return &QAHandler{qaService: qaService, log: log.With("handler", "QAHandler")}
}

func (h *QAHandler) ListForBlob(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	pairs, err := h.qaService.ListForBlob(c.Request.Context(), blobID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, pairs)
}

func (h *QAHandler) DeleteForBlob(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.qaService.DeleteForBlob(c.Request.Context(), blobID); err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *QAHandler) Regenerate(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.qaService.Regenerate(c.Request.Context(), blobID); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusAccepted, gin.H{"regenerated": true})
}
