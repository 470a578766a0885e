package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// minCropSizeForExtraction is the shortest-side pixel size below which a crop is
// considered too degenerate to embed reliably; callers should surface
// coreerr.ErrExtraction instead of calling Extract.
const minCropSizeForExtraction = 70

// Embedder extracts the 128-dimensional feature embedding using an ArcFace-family
// ONNX model, generalized from the teacher's fixed 512-D ArcFace wrapper to the
// 128-D contract this pipeline requires.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
}

// NewEmbedder loads an ArcFace-style ONNX model expecting a 112x112 input and
// producing an embDim-dimensional output.
func NewEmbedder(modelPath string, embDim int, opts *ort.SessionOptions) (*Embedder, error) {
	inputW, inputH := 112, 112
	if embDim <= 0 {
		embDim = 128
	}

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(embDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		embDim:       embDim,
	}, nil
}

// IsTooSmall reports whether a crop is too degenerate to embed.
func IsTooSmall(crop image.Image) bool {
	b := crop.Bounds()
	shortest := b.Dx()
	if b.Dy() < shortest {
		shortest = b.Dy()
	}
	return shortest < minCropSizeForExtraction
}

// Extract runs embedding extraction on a face crop and returns an L2-normalized
// embDim-dimensional vector.
func (e *Embedder) Extract(crop image.Image) ([]float32, error) {
	faceData := imageToFloat32CHW(crop, e.inputW, e.inputH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	inputSlice := e.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	outputData := e.outputTensor.GetData()
	embedding := make([]float32, e.embDim)
	copy(embedding, outputData)

	normalize(embedding)

	return embedding, nil
}

// EmbeddingDim returns the embedding vector dimension.
func (e *Embedder) EmbeddingDim() int {
	return e.embDim
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// normalize performs L2 normalization in-place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
