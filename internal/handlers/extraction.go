package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/services"
)

type ExtractionHandler struct {
	extractionService services.ExtractionService
	log               *logger.Logger
}

func NewExtractionHandler(extractionService services.ExtractionService, log *logger.Logger) *ExtractionHandler {
	return &ExtractionHandler{extractionService: extractionService, log: log.With("handler", "ExtractionHandler")}
}

// Trigger enqueues extraction for a blob. A duplicate trigger while a job is
// active answers 409 with the conflict spelled out.
func (h *ExtractionHandler) Trigger(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	job, err := h.extractionService.TriggerExtraction(c.Request.Context(), blobID)
	if err != nil {
		if errors.Is(err, repos.ErrActiveJobExists) {
			respondError(c, http.StatusConflict, err)
			return
		}
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusAccepted, job)
}

func (h *ExtractionHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	view, err := h.extractionService.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, view)
}

func (h *ExtractionHandler) GetLatestForBlob(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	job, err := h.extractionService.GetLatestJobForBlob(c.Request.Context(), blobID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, job)
}

func (h *ExtractionHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	jobs, err := h.extractionService.ListJobs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, jobs)
}

func (h *ExtractionHandler) GetChunks(c *gin.Context) {
	blobID, err := uuid.Parse(c.Param("blobID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	chunks, err := h.extractionService.GetChunks(c.Request.Context(), blobID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, chunks)
}
