package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventface/facecore/internal/livescan"
	"github.com/eventface/facecore/pkg/dto"
)

// ScanHandler backs POST /scan/capture and POST /scan/match.
type ScanHandler struct {
	manager *livescan.Manager
}

func NewScanHandler(manager *livescan.Manager) *ScanHandler {
	return &ScanHandler{manager: manager}
}

// Capture handles POST /scan/capture: runs one live-scan session end to end
// (camera acquisition through person match) and reports its terminal state.
func (h *ScanHandler) Capture(c *gin.Context) {
	var req dto.ScanCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(err.Error()))
		return
	}

	session, err := h.manager.Capture(c.Request.Context(), req.EventID, req.CameraIndex, req.TimeoutSeconds, req.MinQuality)
	resp := dto.ScanCaptureResponse{SessionID: session.ID, State: string(session.State())}
	if err != nil {
		resp.Reason = err.Error()
		c.JSON(http.StatusOK, dto.Ok(resp))
		return
	}

	c.JSON(http.StatusOK, dto.Ok(resp))
}

// Match handles POST /scan/match: returns the matched person's photo split
// for a session that has already reached the done state.
func (h *ScanHandler) Match(c *gin.Context) {
	var req dto.ScanMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(err.Error()))
		return
	}

	session, err := h.manager.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.Fail(err.Error()))
		return
	}

	photos, err := session.PhotosForMatch(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.Ok(dto.PersonPhotosResponse{
		PersonID:   session.PersonID(),
		Individual: toSummaries(photos.Individual),
		Group:      toSummaries(photos.Group),
	}))
}
