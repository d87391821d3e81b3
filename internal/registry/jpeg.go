package registry

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/hammamikhairi/omnis/internal/domain"
)

// EncodeJPEG converts a packed BGR frame to JPEG.
func EncodeJPEG(f domain.Frame) ([]byte, error) {
	if f.Empty() || len(f.Pix) < f.Width*f.Height*3 {
		return nil, fmt.Errorf("frame %dx%d has %d bytes", f.Width, f.Height, len(f.Pix))
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < f.Width*f.Height*3; i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i+2]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i]
		img.Pix[j+3] = 0xff
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
