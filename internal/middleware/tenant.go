package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/types"
)

// RequireTenantMember resolves the :tenantID path param, checks the
// authenticated user's membership, and stamps tenant id + role into the
// request data. Non-members get 404, not 403, so tenant ids do not leak.
func RequireTenantMember(membershipRepo repos.MembershipRepo, log *logger.Logger) gin.HandlerFunc {
	mwLog := log.With("middleware", "RequireTenantMember")
	return func(c *gin.Context) {
		rd := requestdata.GetRequestData(c.Request.Context())
		if rd == nil || rd.UserID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		tenantID, err := uuid.Parse(c.Param("tenantID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant id"})
			return
		}

		membership, err := membershipRepo.GetByTenantAndUser(c.Request.Context(), nil, tenantID, rd.UserID)
		if err != nil {
			mwLog.Error("Failed to check membership", "tenantID", tenantID, "userID", rd.UserID, "error", err.Error())
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			return
		}
		if membership == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}

		rd.TenantID = tenantID
		rd.TenantRole = membership.Role
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

// RequireOwner gates owner-only operations. Must run after
// RequireTenantMember.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := requestdata.GetRequestData(c.Request.Context())
		if rd == nil || rd.TenantRole != types.TenantRoleOwner {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Owner role required"})
			return
		}
		c.Next()
	}
}
