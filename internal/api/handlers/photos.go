package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventface/facecore/internal/batch"
	"github.com/eventface/facecore/internal/blobstore"
	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/pipeline"
	"github.com/eventface/facecore/pkg/dto"
)

// PhotoHandler backs POST /photos/upload and POST /photos/process-event.
type PhotoHandler struct {
	blobs     *blobstore.Store
	processor *pipeline.PhotoProcessor
	runner    *batch.Runner
	upload    config.UploadConfig
}

func NewPhotoHandler(blobs *blobstore.Store, processor *pipeline.PhotoProcessor, runner *batch.Runner, upload config.UploadConfig) *PhotoHandler {
	return &PhotoHandler{blobs: blobs, processor: processor, runner: runner, upload: upload}
}

// Upload handles POST /photos/upload (multipart file + event_id).
func (h *PhotoHandler) Upload(c *gin.Context) {
	eventID, err := uuid.Parse(c.PostForm("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("invalid event_id"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("missing file"))
		return
	}
	if fileHeader.Size > h.upload.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, dto.Fail("file exceeds upload limit"))
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedExtension(h.upload.AllowedExtensions, ext) {
		c.JSON(http.StatusBadRequest, dto.Fail("unsupported file extension"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("cannot open uploaded file"))
		return
	}
	defer file.Close()

	buf, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("cannot read uploaded file"))
		return
	}

	storageKey := fmt.Sprintf("events/%s/%s-%s", eventID, uuid.New().String()[:8], fileHeader.Filename)
	contentType := "image/jpeg"
	if ext == ".png" {
		contentType = "image/png"
	}
	if err := h.blobs.Put(c.Request.Context(), storageKey, buf, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, dto.Fail("store upload: "+err.Error()))
		return
	}

	result, err := h.processor.ProcessPhoto(c.Request.Context(), eventID, storageKey, fileHeader.Filename, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.Fail("process photo: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.Ok(dto.UploadPhotoResponse{PhotoID: result.PhotoID, StorageKey: storageKey}))
}

// ProcessEvent handles POST /photos/process-event (batch folder run).
func (h *PhotoHandler) ProcessEvent(c *gin.Context) {
	var req dto.ProcessEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(err.Error()))
		return
	}

	resp, err := h.runner.RunEventBatch(c.Request.Context(), req.EventID, req.PhotosDir, req.ForceReprocess)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.Fail(err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.Ok(resp))
}

func allowedExtension(allowed []string, ext string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
