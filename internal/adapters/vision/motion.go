package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// MotionConfig tunes the detector.
type MotionConfig struct {
	// BlurSigma smooths sensor noise before differencing.
	BlurSigma float64

	// Threshold is the per-pixel grey-level change that counts as motion.
	Threshold uint8

	// MinArea is the number of connected changed pixels a region needs
	// to count as motion.
	MinArea int
}

// MotionDetector compares each frame with the one before it.
// It is not safe for concurrent use.
type MotionDetector struct {
	cfg  MotionConfig
	prev *image.NRGBA
}

// NewMotionDetector creates a detector with no reference frame.
func NewMotionDetector(cfg MotionConfig) *MotionDetector {
	if cfg.MinArea < 1 {
		cfg.MinArea = 1
	}
	return &MotionDetector{cfg: cfg}
}

// Detect reports whether img differs from the previous frame by at least
// one region larger than MinArea. The first frame, and any frame whose
// size differs from the previous one, only becomes the new reference.
func (d *MotionDetector) Detect(img image.Image) bool {
	gray := imaging.Grayscale(img)
	if d.cfg.BlurSigma > 0 {
		gray = imaging.Blur(gray, d.cfg.BlurSigma)
	}
	prev := d.prev
	d.prev = gray
	if prev == nil || !prev.Rect.Eq(gray.Rect) {
		return false
	}

	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := y * gray.Stride
		for x := 0; x < w; x++ {
			// Grey images carry the same value in R, G and B.
			a, b := gray.Pix[row+x*4], prev.Pix[row+x*4]
			diff := a - b
			if b > a {
				diff = b - a
			}
			mask[y*w+x] = diff > d.cfg.Threshold
		}
	}

	mask = dilate(mask, w, h)
	mask = dilate(mask, w, h)
	return hasRegion(mask, w, h, d.cfg.MinArea)
}

// Reset drops the reference frame.
func (d *MotionDetector) Reset() {
	d.prev = nil
}

// dilate grows every set pixel into its 3x3 neighbourhood.
func dilate(src []bool, w, h int) []bool {
	dst := make([]bool, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !src[y*w+x] {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					dst[ny*w+nx] = true
				}
			}
		}
	}
	return dst
}

// hasRegion reports whether any 8-connected region of set pixels has
// more than minArea pixels. It consumes mask.
func hasRegion(mask []bool, w, h, minArea int) bool {
	stack := make([]int, 0, 256)
	for start, set := range mask {
		if !set {
			continue
		}
		mask[start] = false
		stack = append(stack[:0], start)
		area := 0
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			if area > minArea {
				return true
			}
			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if mask[j] {
						mask[j] = false
						stack = append(stack, j)
					}
				}
			}
		}
	}
	return false
}
