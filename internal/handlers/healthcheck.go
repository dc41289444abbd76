package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/cache"
	"github.com/docuvault/docuvault-backend/internal/logger"
)

type HealthcheckHandler struct {
	db    *gorm.DB
	cache cache.Cache
	log   *logger.Logger
}

func NewHealthcheckHandler(db *gorm.DB, c cache.Cache, log *logger.Logger) *HealthcheckHandler {
	return &HealthcheckHandler{db: db, cache: c, log: log.With("handler", "HealthcheckHandler")}
}

func (h *HealthcheckHandler) Healthcheck(c *gin.Context) {
	status := gin.H{"status": "ok"}

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status["status"] = "degraded"
		status["postgres"] = "down"
	} else {
		status["postgres"] = "up"
	}

	if err := h.cache.Ping(c.Request.Context()); err != nil {
		status["status"] = "degraded"
		status["redis"] = "down"
	} else {
		status["redis"] = "up"
	}

	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
