package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/services"
)

type AgentHandler struct {
	agentService services.AgentService
	log          *logger.Logger
}

func NewAgentHandler(agentService services.AgentService, log *logger.Logger) *AgentHandler {
	return &AgentHandler{agentService: agentService, log: log.With("handler", "AgentHandler")}
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h *AgentHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	session, err := h.agentService.CreateSession(c.Request.Context(), req.Title)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusCreated, session)
}

func (h *AgentHandler) ListSessions(c *gin.Context) {
	sessions, err := h.agentService.ListSessions(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, sessions)
}

func (h *AgentHandler) GetTranscript(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	session, messages, err := h.agentService.GetTranscript(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"session": session, "messages": messages})
}

func (h *AgentHandler) DeleteSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.agentService.DeleteSession(c.Request.Context(), sessionID); err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *AgentHandler) SendMessage(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	turn, err := h.agentService.SendMessage(c.Request.Context(), sessionID, req.Content)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, turn)
}
