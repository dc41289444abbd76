package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/services"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type TenantHandler struct {
	tenantService services.TenantService
	log           *logger.Logger
}

func NewTenantHandler(tenantService services.TenantService, log *logger.Logger) *TenantHandler {
	return &TenantHandler{tenantService: tenantService, log: log.With("handler", "TenantHandler")}
}

type createTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *TenantHandler) Create(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	tenant, err := h.tenantService.CreateTenant(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusCreated, tenant)
}

func (h *TenantHandler) ListMine(c *gin.Context) {
	tenants, err := h.tenantService.ListMyTenants(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, tenants)
}

func (h *TenantHandler) Get(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	tenant, err := h.tenantService.GetTenant(c.Request.Context(), rd.TenantID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, http.StatusOK, tenant)
}

type renameTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *TenantHandler) Rename(c *gin.Context) {
	var req renameTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	tenant, err := h.tenantService.RenameTenant(c.Request.Context(), rd.TenantID, req.Name)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, tenant)
}

type addMemberRequest struct {
	Email string `json:"email" binding:"required"`
	Role  string `json:"role"`
}

func (h *TenantHandler) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	membership, err := h.tenantService.AddMember(c.Request.Context(), rd.TenantID, req.Email, req.Role)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusCreated, membership)
}

func (h *TenantHandler) ListMembers(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	members, err := h.tenantService.ListMembers(c.Request.Context(), rd.TenantID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, members)
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *TenantHandler) ChangeMemberRole(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	membership, err := h.tenantService.ChangeMemberRole(c.Request.Context(), rd.TenantID, userID, req.Role)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, membership)
}

// RemoveMember handles owner removals and self-removal: a member may always
// leave the tenant, removing anyone else takes the owner role.
func (h *TenantHandler) RemoveMember(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	if userID != rd.UserID && rd.TenantRole != types.TenantRoleOwner {
		respondError(c, http.StatusForbidden, fmt.Errorf("Owner role required"))
		return
	}
	if err := h.tenantService.RemoveMember(c.Request.Context(), rd.TenantID, userID); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"removed": true})
}
