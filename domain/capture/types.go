package capture

import (
	"context"
	"image"

	"go.trai.ch/zerr"
)

var (
	// ErrCaptureUnavailable is returned when no frame could be captured.
	ErrCaptureUnavailable = zerr.New("screen capture unavailable")

	// ErrTemplateLoad is returned when a template image cannot be read or decoded.
	ErrTemplateLoad = zerr.New("template load failed")
)

// Capturer captures a full-screen frame on demand. The caller owns the
// returned frame and must Release it.
type Capturer interface {
	Capture(ctx context.Context) (*Frame, error)
}

// TemplateSource loads template images by name.
type TemplateSource interface {
	Load(name string) (image.Image, error)
}

// ScaleHints remembers the last scale that produced a match for a template.
type ScaleHints interface {
	Get(ctx context.Context, name string) (float64, bool)
	Put(ctx context.Context, name string, scale float64)
}

// MatchResult is a located template occurrence. X and Y are the top-left
// anchor in frame coordinates.
type MatchResult struct {
	X, Y          int
	Width, Height int
	Similarity    float64
	Scale         float64
}

// Center returns the middle of the matched region.
func (r MatchResult) Center() image.Point {
	return image.Pt(r.X+r.Width/2, r.Y+r.Height/2)
}
