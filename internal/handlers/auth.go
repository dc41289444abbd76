package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/services"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type AuthHandler struct {
	authService services.AuthService
	log         *logger.Logger
}

func NewAuthHandler(authService services.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log.With("handler", "AuthHandler")}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	User         *types.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	user := &types.User{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	created, token, err := h.authService.RegisterUser(c.Request.Context(), user)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusCreated, authResponse{
		User:         created,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	user, token, err := h.authService.LoginUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, http.StatusUnauthorized, err)
		return
	}
	respondOK(c, http.StatusOK, authResponse{
		User:         user,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := h.authService.RefreshToken(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusUnauthorized, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.LogoutUser(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"logged_out": true})
}
