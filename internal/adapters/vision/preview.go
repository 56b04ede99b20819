package vision

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

var crosshairColor = color.NRGBA{G: 255, A: 255}

// Preview writes the latest frame, with a centre crosshair for aiming the
// camera, to a JPEG file while enabled.
type Preview struct {
	path    string
	enabled atomic.Bool
}

// NewPreview creates a preview writer for path.
func NewPreview(path string, enabled bool) *Preview {
	p := &Preview{path: path}
	p.enabled.Store(enabled)
	return p
}

// Enabled reports whether frames are being written.
func (p *Preview) Enabled() bool { return p.enabled.Load() }

// Toggle flips the preview on or off and returns the new setting.
func (p *Preview) Toggle() bool {
	for {
		old := p.enabled.Load()
		if p.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Path returns the preview file location.
func (p *Preview) Path() string { return p.path }

// Write saves img with a crosshair overlay. It is a no-op while disabled.
func (p *Preview) Write(img image.Image) error {
	if !p.Enabled() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("creating preview directory: %w", err)
	}

	frame := Crosshair(img)
	tmp := p.path + ".tmp.jpg"
	if err := imaging.Save(frame, tmp, imaging.JPEGQuality(80)); err != nil {
		return fmt.Errorf("saving preview: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replacing preview: %w", err)
	}
	return nil
}

// Crosshair returns a copy of img with a one-pixel line through the
// centre in each direction.
func Crosshair(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	for y := 0; y < h; y++ {
		dst.SetNRGBA(w/2, y, crosshairColor)
	}
	for x := 0; x < w; x++ {
		dst.SetNRGBA(x, h/2, crosshairColor)
	}
	return dst
}
