package capture

import (
	"image"
	"image/draw"
	"sync"
	"time"
)

// Frame is a captured screen image. Its grayscale integral tables are built
// once on first use and shared by every match against the frame.
type Frame struct {
	CapturedAt time.Time
	Sequence   uint64

	img    *image.RGBA
	pooled bool

	once sync.Once
	pre  *grayPrecomp

	mu       sync.Mutex
	released bool
}

// NewFrame wraps img. Non-RGBA images are copied into a pooled RGBA buffer.
func NewFrame(img image.Image) *Frame {
	if rgba, ok := img.(*image.RGBA); ok {
		return &Frame{img: rgba, CapturedAt: time.Now()}
	}
	b := img.Bounds()
	dst := acquireFrame(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return &Frame{img: dst, pooled: true, CapturedAt: time.Now()}
}

// Image returns the underlying pixels. It must not be used after Release.
func (f *Frame) Image() *image.RGBA { return f.img }

func (f *Frame) Width() int  { return f.img.Rect.Dx() }
func (f *Frame) Height() int { return f.img.Rect.Dy() }

func (f *Frame) precomp() *grayPrecomp {
	f.once.Do(func() { f.pre = buildGrayPrecomp(f.img) })
	return f.pre
}

// Release returns the frame's buffers to the pools. It is safe to call more
// than once and on a nil frame.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.released = true
	if f.pre != nil {
		f.pre.release()
		f.pre = nil
	}
	if f.pooled {
		recycleFrame(f.img)
	}
}
