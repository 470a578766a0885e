package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/eventface/facecore/internal/models"
)

// DNNVariant is the cascade's third stage: an OpenCV DNN module SSD-style face
// detector (e.g. a Caffe ResNet-SSD res10_300x300 model), preferring CUDA and
// falling back to CPU.
type DNNVariant struct {
	net        gocv.Net
	confidence float32
	inputSize  int
}

// NewDNNVariant loads a Caffe/ONNX/TensorFlow detection net via gocv.ReadNet.
// configPath may be empty for formats (like ONNX) that embed the graph with weights.
func NewDNNVariant(modelPath, configPath string, confidence float64) (*DNNVariant, error) {
	if modelPath == "" {
		return nil, errNoModel("dnn")
	}
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("read dnn model %s", modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err == nil {
		_ = net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		_ = net.SetPreferableBackend(gocv.NetBackendDefault)
		_ = net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	return &DNNVariant{net: net, confidence: float32(confidence), inputSize: 300}, nil
}

func (d *DNNVariant) Detect(img image.Image) ([]Detection, error) {
	mat, err := imageToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	imgW := float32(mat.Cols())
	imgH := float32(mat.Rows())

	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(104.0, 177.0, 123.0, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// SSD detection output shape is [1, 1, N, 7]: [_, classID, confidence, x1,y1,x2,y2] (normalised).
	flat := out.Reshape(1, out.Total()/7)
	defer flat.Close()

	var dets []Detection
	rows := flat.Rows()
	for i := 0; i < rows; i++ {
		conf := flat.GetFloatAt(i, 2)
		if conf < d.confidence {
			continue
		}
		x1 := clampF(flat.GetFloatAt(i, 3)*imgW, 0, imgW)
		y1 := clampF(flat.GetFloatAt(i, 4)*imgH, 0, imgH)
		x2 := clampF(flat.GetFloatAt(i, 5)*imgW, 0, imgW)
		y2 := clampF(flat.GetFloatAt(i, 6)*imgH, 0, imgH)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		dets = append(dets, Detection{
			BBox:       [4]float32{x1, y1, x2, y2},
			Confidence: conf,
			Detector:   models.DetectorDNN,
		})
	}
	return dets, nil
}

func (d *DNNVariant) Close() {
	d.net.Close()
}
