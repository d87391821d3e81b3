package vision

import (
	"errors"

	"github.com/hammamikhairi/omnis/internal/domain"
)

// Vision joins a detector and an embedder into the FaceVision port.
type Vision struct {
	det *YuNet
	emb *Embedder
}

var _ domain.FaceVision = (*Vision)(nil)

// Config holds model paths.
type Config struct {
	DetectorModel  string  // YuNet ONNX, e.g. models/face_detection_yunet_2023mar.onnx
	EmbeddingModel string  // 128-d face embedding ONNX
	OnnxLib        string  // onnxruntime shared library
	MinScore       float64 // detector confidence floor
}

// New loads both models. The onnxruntime environment is initialised
// here and torn down by Close.
func New(cfg Config) (*Vision, error) {
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.8
	}
	if err := InitRuntime(cfg.OnnxLib); err != nil {
		return nil, err
	}
	det, err := NewYuNet(cfg.DetectorModel, cfg.MinScore)
	if err != nil {
		_ = DestroyRuntime()
		return nil, err
	}
	emb, err := NewEmbedder(cfg.EmbeddingModel)
	if err != nil {
		det.Close()
		_ = DestroyRuntime()
		return nil, err
	}
	return &Vision{det: det, emb: emb}, nil
}

// DetectFaces implements domain.FaceVision.
func (v *Vision) DetectFaces(frame domain.Frame) ([]domain.FaceBox, error) {
	return v.det.Detect(frame)
}

// EncodeFaces implements domain.FaceVision.
func (v *Vision) EncodeFaces(frame domain.Frame, boxes []domain.FaceBox) ([]domain.Encoding, error) {
	return v.emb.Encode(frame, boxes)
}

// Compare implements domain.FaceVision.
func (v *Vision) Compare(known []domain.Encoding, enc domain.Encoding, tolerance float64) ([]bool, []float64) {
	return domain.CompareEncodings(known, enc, tolerance)
}

// Close releases both models and the runtime.
func (v *Vision) Close() error {
	return errors.Join(v.emb.Close(), v.det.Close(), DestroyRuntime())
}
