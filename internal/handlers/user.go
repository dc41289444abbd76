package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/services"
)

type UserHandler struct {
	userService services.UserService
	log         *logger.Logger
}

func NewUserHandler(userService services.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{userService: userService, log: log.With("handler", "UserHandler")}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.userService.GetMe(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	user, err := h.userService.UpdateProfile(c.Request.Context(), req.FirstName, req.LastName)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}
