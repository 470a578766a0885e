package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/match"
	"github.com/eventface/facecore/pkg/dto"
)

// SearchHandler backs GET /search/person/:id/photos and POST /search/similar-faces.
type SearchHandler struct {
	store   *identity.Store
	matcher *match.Matcher
}

func NewSearchHandler(store *identity.Store, matcher *match.Matcher) *SearchHandler {
	return &SearchHandler{store: store, matcher: matcher}
}

// PersonPhotos handles GET /search/person/:id/photos.
func (h *SearchHandler) PersonPhotos(c *gin.Context) {
	personID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("invalid person id"))
		return
	}

	individual, group, err := h.store.PhotosForPerson(c.Request.Context(), personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.Fail(err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.Ok(dto.PersonPhotosResponse{
		PersonID:   personID,
		Individual: toSummaries(individual),
		Group:      toSummaries(group),
	}))
}

// SimilarFaces handles POST /search/similar-faces: a ranked k-NN browse over
// an event's persons given a raw query embedding.
func (h *SearchHandler) SimilarFaces(c *gin.Context) {
	var req dto.SimilarFacesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(err.Error()))
		return
	}

	candidates, err := h.matcher.Similar(c.Request.Context(), req.EventID, req.Embedding, req.K)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.Fail(err.Error()))
		return
	}

	out := make([]dto.SimilarFace, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, dto.SimilarFace{PersonID: cand.PersonID, Distance: cand.Distance})
	}

	c.JSON(http.StatusOK, dto.Ok(out))
}
