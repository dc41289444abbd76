package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/services"
	"github.com/docuvault/docuvault-backend/internal/sse"
)

type SSEHandler struct {
	hub *sse.SSEHub
	log *logger.Logger
}

func NewSSEHandler(hub *sse.SSEHub, log *logger.Logger) *SSEHandler {
	return &SSEHandler{hub: hub, log: log.With("handler", "SSEHandler")}
}

// Stream subscribes the caller to their tenant's event channel and holds the
// connection open, flushing one SSE frame per hub message.
func (h *SSEHandler) Stream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil || rd.TenantID == uuid.Nil {
		respondError(c, http.StatusUnauthorized, fmt.Errorf("No tenant scope on request"))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, http.StatusInternalServerError, fmt.Errorf("Streaming is not supported"))
		return
	}

	client := h.hub.NewSSEClient(rd.UserID)
	h.hub.AddChannel(client, services.TenantChannel(rd.TenantID))
	defer h.hub.RemoveClient(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Comment frames keep proxies from cutting idle streams.
	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-client.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		case msg := <-client.Outbound:
			payload, err := json.Marshal(msg.Data)
			if err != nil {
				h.log.Warn("Failed to marshal SSE payload", "error", err.Error())
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", msg.Event, payload)
			flusher.Flush()
		}
	}
}
