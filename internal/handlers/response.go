package handlers

import (
	"github.com/gin-gonic/gin"
)

// Every endpoint responds with either {"data": ...} or {"error": "..."}.

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
