package capture

import (
	"image"
	"sync"
)

// Frames and their grayscale tables are large (a 1080x1920 frame needs
// ~50MB of float64 integrals), so backing slices are pooled and handed back
// explicitly through Frame.Release and templatePrecomp.release.

var (
	framePool sync.Pool // *image.RGBA
	floatPool sync.Pool // *[]float64
)

// acquireFrame returns a reusable RGBA image sized to rect. The returned Pix
// length exactly matches rect area * 4, and Stride is width*4.
func acquireFrame(rect image.Rectangle) *image.RGBA {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := framePool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		img = &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	} else {
		img.Stride = w * 4
		img.Rect = rect
		img.Pix = img.Pix[:needed]
	}
	return img
}

func recycleFrame(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	framePool.Put(img)
}

// acquireFloats returns a zeroed slice of length n.
func acquireFloats(n int) []float64 {
	if v := floatPool.Get(); v != nil {
		buf := *(v.(*[]float64))
		if cap(buf) >= n {
			buf = buf[:n]
			clear(buf)
			return buf
		}
	}
	return make([]float64, n)
}

func releaseFloats(buf []float64) {
	if buf == nil {
		return
	}
	floatPool.Put(&buf)
}
