package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/eventface/facecore/internal/models"
)

// MTCNNVariant is the cascade's last, most expensive stage: an anchor-based ONNX
// face/landmark detector run through onnxruntime, the same session machinery the
// teacher's RetinaFace wrapper used. The input size (640x640), anchor strides
// (8/16/32, two anchors per cell) and output tensor names are fixed to a
// det_10g-style export.
type MTCNNVariant struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	minFaceSize   float32
	// pyramidFactor is accepted for parity with the classic multi-scale MTCNN
	// config surface but is not consumed: this variant has no image pyramid to
	// step through (see NewMTCNNVariant).
	pyramidFactor float32
	inputW        int
	inputH        int
	strides       []int
	anchorsPerStride int
}

var mtcnnStrides = []int{8, 16, 32}

const mtcnnAnchorsPerStride = 2

// NewMTCNNVariant loads an ONNX graph whose single input is "input.1" and whose
// per-stride scores/bboxes/landmarks outputs carry the fixed names listed below.
// minFaceSize discards detections smaller than that many pixels (in the original
// image) on their shortest side, the same floor the classic pyramid-based MTCNN
// applies before running P-Net at all. There is no equivalent home for the
// pyramid scale factor here: this variant runs a single anchor-based pass over a
// fixed 640x640 input (a det_10g-style export) rather than P-Net over a real
// image pyramid, so there is no per-octave scale step to apply it to.
func NewMTCNNVariant(modelPath string, threshold float64, minFaceSize int, pyramidFactor float64, opts *ort.SessionOptions) (*MTCNNVariant, error) {
	if modelPath == "" {
		return nil, errNoModel("mtcnn")
	}

	inputW, inputH := 640, 640
	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	type outputSpec struct {
		name  string
		shape ort.Shape
	}
	// Matches a det_10g-style export: per-stride scores [N,1], bboxes [N,4], landmarks [N,10]
	// for strides 8/16/32 over a 640x640 input with 2 anchors per cell.
	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %d (%s): %w", i, spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create mtcnn session: %w", err)
	}

	return &MTCNNVariant{
		session:          session,
		inputTensor:      inputTensor,
		outputTensors:    outputTensors,
		threshold:        float32(threshold),
		minFaceSize:      float32(minFaceSize),
		pyramidFactor:    float32(pyramidFactor),
		inputW:           inputW,
		inputH:           inputH,
		strides:          mtcnnStrides,
		anchorsPerStride: mtcnnAnchorsPerStride,
	}, nil
}

func (m *MTCNNVariant) Detect(img image.Image) ([]Detection, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	imgData := imageToFloat32CHW(img, m.inputW, m.inputH, [3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})

	inputSlice := m.inputTensor.GetData()
	copy(inputSlice, imgData)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run mtcnn: %w", err)
	}

	return m.parseDetections(origW, origH), nil
}

func (m *MTCNNVariant) parseDetections(origW, origH int) []Detection {
	var detections []Detection

	scaleW := float32(origW) / float32(m.inputW)
	scaleH := float32(origH) / float32(m.inputH)

	for si, stride := range m.strides {
		scores := m.outputTensors[si].GetData()
		bboxes := m.outputTensors[si+3].GetData()
		landmarks := m.outputTensors[si+6].GetData()

		fmW := m.inputW / stride
		fmH := m.inputH / stride

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < m.anchorsPerStride; a++ {
					score := scores[idx]
					if score >= m.threshold {
						anchorX := float32(cx) * float32(stride)
						anchorY := float32(cy) * float32(stride)
						st := float32(stride)

						x1 := (anchorX - bboxes[idx*4+0]*st) * scaleW
						y1 := (anchorY - bboxes[idx*4+1]*st) * scaleH
						x2 := (anchorX + bboxes[idx*4+2]*st) * scaleW
						y2 := (anchorY + bboxes[idx*4+3]*st) * scaleH

						x1 = clampF(x1, 0, float32(origW))
						y1 = clampF(y1, 0, float32(origH))
						x2 = clampF(x2, 0, float32(origW))
						y2 = clampF(y2, 0, float32(origH))

						if w, h := x2-x1, y2-y1; m.minFaceSize > 0 && (w < m.minFaceSize || h < m.minFaceSize) {
							idx++
							continue
						}

						var lm [5][2]float32
						for li := 0; li < 5; li++ {
							lm[li][0] = (anchorX + landmarks[idx*10+li*2]*st) * scaleW
							lm[li][1] = (anchorY + landmarks[idx*10+li*2+1]*st) * scaleH
						}

						detections = append(detections, Detection{
							BBox:       [4]float32{x1, y1, x2, y2},
							Confidence: score,
							Landmarks:  lm,
							Detector:   models.DetectorMTCNN,
						})
					}
					idx++
				}
			}
		}
	}

	return detections
}

func (m *MTCNNVariant) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	for _, t := range m.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}
