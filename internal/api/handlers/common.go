package handlers

import (
	"github.com/google/uuid"

	"github.com/eventface/facecore/internal/models"
	"github.com/eventface/facecore/pkg/dto"
)

func toSummaries(photos []models.Photo) []dto.PhotoSummary {
	out := make([]dto.PhotoSummary, 0, len(photos))
	for _, p := range photos {
		out = append(out, dto.PhotoSummary{PhotoID: p.ID, Filename: p.Filename, FaceCount: p.FaceCount})
	}
	return out
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
