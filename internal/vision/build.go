package vision

import (
	"log/slog"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/eventface/facecore/internal/config"
)

// BuildCascade loads whichever C1 variants have a configured model path,
// logging and skipping any that fail to load instead of aborting startup, so
// a deployment can run with a partial model set.
func BuildCascade(cfg config.VisionConfig, opts *ort.SessionOptions) *Cascade {
	haar, err := NewHaarVariant(joinModelsDir(cfg.ModelsDir, cfg.HaarCascade), joinModelsDir(cfg.ModelsDir, cfg.HaarProfileCascade))
	if err != nil {
		slog.Warn("haar variant unavailable", "error", err)
		haar = nil
	}
	hog, err := NewHOGVariant(joinModelsDir(cfg.ModelsDir, cfg.PigoCascade))
	if err != nil {
		slog.Warn("hog variant unavailable", "error", err)
		hog = nil
	}
	dnn, err := NewDNNVariant(joinModelsDir(cfg.ModelsDir, cfg.DNNModel), joinModelsDir(cfg.ModelsDir, cfg.DNNConfig), cfg.DNNConfidence)
	if err != nil {
		slog.Warn("dnn variant unavailable", "error", err)
		dnn = nil
	}
	mtcnn, err := NewMTCNNVariant(joinModelsDir(cfg.ModelsDir, cfg.MTCNNONet), cfg.MTCNNThresholds[2], cfg.MTCNNMinFaceSize, cfg.MTCNNPyramidFactor, opts)
	if err != nil {
		slog.Warn("mtcnn variant unavailable", "error", err)
		mtcnn = nil
	}
	return NewCascade(haar, hog, dnn, mtcnn)
}

// BuildEmbedder loads the C4 ArcFace-style embedding model.
func BuildEmbedder(cfg config.VisionConfig, opts *ort.SessionOptions) (*Embedder, error) {
	return NewEmbedder(joinModelsDir(cfg.ModelsDir, cfg.EmbeddingModel), 128, opts)
}

func joinModelsDir(dir, name string) string {
	if name == "" {
		return ""
	}
	return filepath.Join(dir, name)
}
