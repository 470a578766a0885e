package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventface/facecore/internal/blobstore"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/match"
	"github.com/eventface/facecore/internal/queue"
	"github.com/eventface/facecore/pkg/dto"
)

// SystemHandler backs GET /system/status and POST /system/reset-cache.
type SystemHandler struct {
	store    *identity.Store
	blobs    *blobstore.Store
	producer *queue.Producer
	matcher  *match.Matcher
}

func NewSystemHandler(store *identity.Store, blobs *blobstore.Store, producer *queue.Producer, matcher *match.Matcher) *SystemHandler {
	return &SystemHandler{store: store, blobs: blobs, producer: producer, matcher: matcher}
}

func (h *SystemHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	resp := dto.SystemStatusResponse{
		Database:  healthString(h.store.Ping(ctx)),
		BlobStore: healthString(h.blobs.Ping(ctx)),
		Queue:     healthString(h.producer.Ping()),
	}
	if depth, err := h.producer.QueueDepth(ctx); err == nil {
		resp.QueueDepth = depth
	}
	c.JSON(http.StatusOK, dto.Ok(resp))
}

// ResetCache handles POST /system/reset-cache: drops every cached matcher
// snapshot for the named event, forcing the next match to re-read Postgres.
func (h *SystemHandler) ResetCache(c *gin.Context) {
	var req struct {
		EventID string `json:"event_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(err.Error()))
		return
	}
	id, err := parseUUID(req.EventID)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("invalid event_id"))
		return
	}
	h.matcher.Invalidate(id)
	c.JSON(http.StatusOK, dto.Ok(nil))
}

func healthString(err error) string {
	if err != nil {
		return "down"
	}
	return "ok"
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, dto.Ok(nil))
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	if err := h.store.Ping(context.Background()); err != nil {
		c.JSON(http.StatusInternalServerError, dto.Fail("database not ready"))
		return
	}
	c.JSON(http.StatusOK, dto.Ok(nil))
}
