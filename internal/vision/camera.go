// Package vision wraps the camera and the face models behind the
// domain ports. Detection uses OpenCV's YuNet through gocv; encodings
// come from an ONNX face embedding model run with onnxruntime.
package vision

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// Camera reads frames from a local video device.
type Camera struct {
	log *logger.Logger

	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
}

var _ domain.Camera = (*Camera)(nil)

// OpenCamera opens the numbered video device.
func OpenCamera(device int, log *logger.Logger) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("opening camera %d: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d did not open", device)
	}
	log.Info("camera %d opened", device)
	return &Camera{log: log, cap: vc, mat: gocv.NewMat()}, nil
}

// Read grabs one frame. ok=false means the device gave nothing usable.
func (c *Camera) Read() (domain.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil || !c.cap.Read(&c.mat) || c.mat.Empty() {
		return domain.Frame{}, false
	}
	f, err := frameFromMat(c.mat)
	if err != nil {
		c.log.Debug("camera: %v", err)
		return domain.Frame{}, false
	}
	return f, true
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.mat.Close()
	c.cap = nil
	return err
}

// LoadImage reads an image file into a frame.
func LoadImage(path string) (domain.Frame, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	defer m.Close()
	if m.Empty() {
		return domain.Frame{}, fmt.Errorf("could not read image %s", path)
	}
	return frameFromMat(m)
}

// frameFromMat copies a BGR (or BGRA) Mat into a packed frame.
func frameFromMat(m gocv.Mat) (domain.Frame, error) {
	src := m
	if m.Channels() == 4 {
		conv := gocv.NewMat()
		defer conv.Close()
		gocv.CvtColor(m, &conv, gocv.ColorBGRAToBGR)
		src = conv
	}
	if src.Type() != gocv.MatTypeCV8UC3 {
		return domain.Frame{}, fmt.Errorf("unsupported frame type %v", src.Type())
	}
	return domain.Frame{Width: src.Cols(), Height: src.Rows(), Pix: src.ToBytes()}, nil
}

// matFromFrame wraps a frame for gocv. The caller closes the Mat.
func matFromFrame(f domain.Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty frame")
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
}
