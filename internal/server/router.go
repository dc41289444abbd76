package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/docuvault/docuvault-backend/internal/handlers"
	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/middleware"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/services"
	"github.com/docuvault/docuvault-backend/internal/utils"
)

type RouterDeps struct {
	Log            *logger.Logger
	AuthService    services.AuthService
	MembershipRepo repos.MembershipRepo

	Healthcheck *handlers.HealthcheckHandler
	Auth        *handlers.AuthHandler
	User        *handlers.UserHandler
	Tenant      *handlers.TenantHandler
	Folder      *handlers.FolderHandler
	Blob        *handlers.BlobHandler
	Extraction  *handlers.ExtractionHandler
	QA          *handlers.QAHandler
	Agent       *handlers.AgentHandler
	SSE         *handlers.SSEHandler
}

// NewRouter builds the full route tree: public auth endpoints, authenticated
// user endpoints, and tenant-scoped endpoints guarded by membership.
func NewRouter(deps RouterDeps) *gin.Engine {
	mode := utils.GetEnv("GIN_MODE", gin.ReleaseMode, deps.Log)
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("docuvault-backend"))

	origins := utils.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000", deps.Log)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(origins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Refresh-Token"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.AttachRequestData())

	r.GET("/healthz", deps.Healthcheck.Healthcheck)

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register", deps.Auth.Register)
		auth.POST("/login", deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)
	}

	authed := api.Group("")
	authed.Use(middleware.RequireAuth(deps.AuthService, deps.Log))
	{
		authed.POST("/auth/logout", deps.Auth.Logout)
		authed.GET("/me", deps.User.GetMe)
		authed.PATCH("/me", deps.User.UpdateProfile)

		authed.POST("/tenants", deps.Tenant.Create)
		authed.GET("/tenants", deps.Tenant.ListMine)
	}

	tenant := authed.Group("/tenants/:tenantID")
	tenant.Use(middleware.RequireTenantMember(deps.MembershipRepo, deps.Log))
	{
		tenant.GET("", deps.Tenant.Get)
		tenant.PATCH("", middleware.RequireOwner(), deps.Tenant.Rename)

		tenant.GET("/members", deps.Tenant.ListMembers)
		tenant.POST("/members", middleware.RequireOwner(), deps.Tenant.AddMember)
		tenant.PATCH("/members/:userID", middleware.RequireOwner(), deps.Tenant.ChangeMemberRole)
		// Self-removal is allowed for non-owners; the handler enforces it.
		tenant.DELETE("/members/:userID", deps.Tenant.RemoveMember)

		tenant.POST("/folders", deps.Folder.Create)
		tenant.GET("/folders", deps.Folder.List)
		tenant.PATCH("/folders/:folderID", deps.Folder.Rename)
		tenant.POST("/folders/:folderID/move", deps.Folder.Move)
		tenant.DELETE("/folders/:folderID", deps.Folder.Delete)

		tenant.POST("/files", deps.Blob.Upload)
		tenant.GET("/files/search", deps.Blob.Search)
		tenant.GET("/files/:blobID", deps.Blob.Get)
		tenant.GET("/files/:blobID/download", deps.Blob.DownloadURL)
		tenant.POST("/files/:blobID/move", deps.Blob.Move)
		tenant.DELETE("/files/:blobID", deps.Blob.Delete)

		tenant.POST("/files/:blobID/extract", deps.Extraction.Trigger)
		tenant.GET("/files/:blobID/extract", deps.Extraction.GetLatestForBlob)
		tenant.GET("/files/:blobID/chunks", deps.Extraction.GetChunks)
		tenant.GET("/extraction/jobs", deps.Extraction.ListJobs)
		tenant.GET("/extraction/jobs/:jobID", deps.Extraction.GetJob)

		tenant.GET("/files/:blobID/qa", deps.QA.ListForBlob)
		tenant.DELETE("/files/:blobID/qa", deps.QA.DeleteForBlob)
		tenant.POST("/files/:blobID/qa/regenerate", deps.QA.Regenerate)

		tenant.POST("/agent/sessions", deps.Agent.CreateSession)
		tenant.GET("/agent/sessions", deps.Agent.ListSessions)
		tenant.GET("/agent/sessions/:sessionID", deps.Agent.GetTranscript)
		tenant.DELETE("/agent/sessions/:sessionID", deps.Agent.DeleteSession)
		tenant.POST("/agent/sessions/:sessionID/messages", deps.Agent.SendMessage)

		tenant.GET("/events", deps.SSE.Stream)
	}

	return r
}
