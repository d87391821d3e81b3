package vision

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/hammamikhairi/omnis/internal/domain"
)

// YuNet detects faces with OpenCV's FaceDetectorYN.
type YuNet struct {
	mu       sync.Mutex // protects inference
	detector gocv.FaceDetectorYN
}

// NewYuNet loads the YuNet ONNX model.
func NewYuNet(modelPath string, scoreThreshold float64) (*YuNet, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("yunet model: %w", err)
	}
	det := gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"",                 // no config file for ONNX
		image.Pt(320, 240), // resized per frame
		float32(scoreThreshold),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &YuNet{detector: det}, nil
}

// Detect returns face boxes in pixel coordinates, in detector order.
func (y *YuNet) Detect(frame domain.Frame) ([]domain.FaceBox, error) {
	img, err := matFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	y.mu.Lock()
	defer y.mu.Unlock()

	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	faces := gocv.NewMat()
	defer faces.Close()
	y.detector.Detect(img, &faces)

	// Rows are x, y, w, h, five landmark pairs, score.
	boxes := make([]domain.FaceBox, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		boxes = append(boxes, domain.FaceBox{
			X:     int(faces.GetFloatAt(r, 0)),
			Y:     int(faces.GetFloatAt(r, 1)),
			W:     int(faces.GetFloatAt(r, 2)),
			H:     int(faces.GetFloatAt(r, 3)),
			Score: float64(faces.GetFloatAt(r, 14)),
		})
	}
	return boxes, nil
}

// Close releases the detector.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}
