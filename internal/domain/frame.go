package domain

// Frame is a packed 8-bit BGR image, three bytes per pixel, row-major.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// BlankFrame returns a black frame of the given size. The presence loop
// uses it as a placeholder when the camera returns nothing.
func BlankFrame(w, h int) Frame {
	return Frame{Width: w, Height: h, Pix: make([]byte, w*h*3)}
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*3
}

// Crop returns a copy of the region covered by box, grown by margin (a
// fraction of the box size) on every side and clipped to the frame.
func (f Frame) Crop(box FaceBox, margin float64) Frame {
	if f.Empty() {
		return Frame{}
	}
	mx := int(float64(box.W) * margin)
	my := int(float64(box.H) * margin)
	x0, y0 := clamp(box.X-mx, 0, f.Width), clamp(box.Y-my, 0, f.Height)
	x1, y1 := clamp(box.X+box.W+mx, 0, f.Width), clamp(box.Y+box.H+my, 0, f.Height)
	w, h := x1-x0, y1-y0
	if w <= 0 || h <= 0 {
		return Frame{}
	}

	out := Frame{Width: w, Height: h, Pix: make([]byte, w*h*3)}
	for row := 0; row < h; row++ {
		src := ((y0+row)*f.Width + x0) * 3
		copy(out.Pix[row*w*3:(row+1)*w*3], f.Pix[src:src+w*3])
	}
	return out
}

// Resize scales the frame to w×h with nearest-neighbour sampling.
func (f Frame) Resize(w, h int) Frame {
	if f.Empty() || w <= 0 || h <= 0 {
		return Frame{}
	}
	out := Frame{Width: w, Height: h, Pix: make([]byte, w*h*3)}
	for y := 0; y < h; y++ {
		sy := y * f.Height / h
		for x := 0; x < w; x++ {
			sx := x * f.Width / w
			copy(out.Pix[(y*w+x)*3:(y*w+x)*3+3], f.Pix[(sy*f.Width+sx)*3:(sy*f.Width+sx)*3+3])
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
