package vision

import (
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/hammamikhairi/omnis/internal/domain"
)

const (
	embedInput = 112 // model input is 112x112 RGB
	// EmbeddingDim is the length of every face encoding.
	EmbeddingDim = 128
)

// InitRuntime loads the onnxruntime shared library. Call once before
// creating an Embedder and pair it with DestroyRuntime.
func InitRuntime(libPath string) error {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnxruntime init: %w", err)
	}
	return nil
}

// DestroyRuntime releases the onnxruntime environment.
func DestroyRuntime() error { return ort.DestroyEnvironment() }

// Embedder turns face crops into encodings with an ONNX model that
// takes a 1x3x112x112 normalized RGB tensor and yields 128 floats.
type Embedder struct {
	mu      sync.Mutex // the session owns its tensors; one run at a time
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
	session *ort.AdvancedSession
}

// NewEmbedder loads the embedding model.
func NewEmbedder(modelPath string) (*Embedder, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embedInput, embedInput))
	if err != nil {
		return nil, err
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, EmbeddingDim))
	if err != nil {
		in.Destroy()
		return nil, err
	}
	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("embedding model info: %w", err)
	}
	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("embedding session: %w", err)
	}
	return &Embedder{in: in, out: out, session: session}, nil
}

// Encode returns one encoding per box.
func (e *Embedder) Encode(frame domain.Frame, boxes []domain.FaceBox) ([]domain.Encoding, error) {
	img, err := matFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	encs := make([]domain.Encoding, 0, len(boxes))
	for _, b := range boxes {
		rect := image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H).Intersect(bounds)
		if rect.Empty() {
			return nil, fmt.Errorf("face %s outside frame", b)
		}
		enc, err := e.encodeRegion(img.Region(rect))
		if err != nil {
			return nil, err
		}
		encs = append(encs, enc)
	}
	return encs, nil
}

func (e *Embedder) encodeRegion(region gocv.Mat) (domain.Encoding, error) {
	defer region.Close()

	// (pixel - 127.5) / 128, BGR swapped to RGB, NCHW.
	blob := gocv.BlobFromImage(region, 1.0/128, image.Pt(embedInput, embedInput),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()
	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	copy(e.in.GetData(), data)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("embedding run: %w", err)
	}
	return domain.Encoding(e.out.GetData()).Clone(), nil
}

// Close releases the session and tensors.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.session.Destroy()
	e.in.Destroy()
	e.out.Destroy()
	return err
}
